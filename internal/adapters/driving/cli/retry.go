package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [document]",
	Short: "Retry chunking for failed documents",
	Long: `Re-runs the pipeline for a failed document given by ID or slug.
Without an argument, queues a retry for every failed document whose backoff
has elapsed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 0 {
		if app.RetryScheduler == nil {
			return errors.New("retry scheduler is disabled")
		}
		n, err := app.RetryScheduler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("queue retries: %w", err)
		}
		cmd.Printf("Queued %d retries\n", n)
		return nil
	}

	doc, err := resolveDocument(ctx, args[0])
	if err != nil {
		return err
	}
	doc, err = app.IngestionService.Retry(ctx, doc.ID)
	if err != nil {
		if doc != nil {
			cmd.Printf("Chunking failed: %s\n", doc.LastError)
		}
		return err
	}
	cmd.Printf("Document %s: %s (retry %d)\n", doc.ID, doc.ChunkingStatus, doc.RetryCount)
	return nil
}
