package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/smartchunk/internal/config"
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/runtime"
)

var (
	version    = "dev"
	configPath string

	// app is the wired application. Tests set it directly; otherwise it is
	// built from configuration before the first command runs.
	app     *runtime.Services
	ownsApp bool
	connect = runtime.Connect
)

var rootCmd = &cobra.Command{
	Use:   "smartchunk",
	Short: "Chunk, embed and search documents",
	Long: `smartchunk splits uploaded documents into overlapping token windows,
embeds each window and answers similarity queries over the stored chunks.

Postgres holds documents and chunks. The task queue and document locks run
on Redis when REDIS_URL is set and on Postgres otherwise.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// Execute runs the CLI until the command returns or the process is signalled.
func Execute(v string) error {
	version = v
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd || app != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	setDefaultLogger(logger)

	s, err := connect(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	app = s
	ownsApp = true
	return nil
}

func closeApp() {
	if app != nil && ownsApp {
		if err := app.Close(); err != nil {
			app.Logger.Warn("close failed", "error", err)
		}
		app = nil
		ownsApp = false
	}
}

// resolveDocument looks ref up as an ID first and then as a slug
func resolveDocument(ctx context.Context, ref string) (*domain.Document, error) {
	doc, err := app.DocumentService.Get(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return app.DocumentService.GetBySlug(ctx, ref)
	}
	return doc, err
}
