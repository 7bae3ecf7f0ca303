package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

var (
	statusOwner  string
	statusFilter string
	statusLimit  int
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [document]",
	Short: "Show chunking status",
	Long: `Shows the chunking state of one document, given by ID or slug.
Without an argument, lists documents and the task queue counters.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusOwner, "owner", "", "list only documents of this owner")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "list only documents in this state")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum number of documents to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runStatusList(cmd)
	}
	ctx := cmd.Context()

	doc, err := resolveDocument(ctx, args[0])
	if err != nil {
		return err
	}
	withChunks, err := app.DocumentService.GetWithChunks(ctx, doc.ID)
	if err != nil {
		return err
	}

	if statusJSON {
		view := domain.DocumentWithChunks{Document: summary(withChunks.Document)}
		for _, c := range withChunks.Chunks {
			chunk := *c
			chunk.Embedding = nil
			view.Chunks = append(view.Chunks, &chunk)
		}
		return printJSON(cmd, view)
	}

	doc = withChunks.Document
	cmd.Printf("ID:        %s\n", doc.ID)
	cmd.Printf("Name:      %s\n", doc.Name)
	cmd.Printf("Slug:      %s\n", doc.Slug)
	cmd.Printf("Owner:     %s\n", doc.Owner)
	cmd.Printf("Public:    %t\n", doc.IsPublic)
	cmd.Printf("Status:    %s\n", doc.ChunkingStatus)
	cmd.Printf("Done:      %t\n", doc.ChunkingDone)
	cmd.Printf("Retries:   %d\n", doc.RetryCount)
	cmd.Printf("Chunks:    %d\n", len(withChunks.Chunks))
	if doc.LastError != "" {
		cmd.Printf("Error:     %s\n", doc.LastError)
	}
	return nil
}

func runStatusList(cmd *cobra.Command) error {
	ctx := cmd.Context()

	docs, err := app.DocumentService.List(ctx, domain.DocumentFilter{
		Owner:  statusOwner,
		Status: domain.ChunkingStatus(statusFilter),
		Limit:  statusLimit,
	})
	if err != nil {
		return err
	}
	if statusJSON {
		views := make([]*domain.Document, len(docs))
		for i, d := range docs {
			views[i] = summary(d)
		}
		return printJSON(cmd, views)
	}

	if len(docs) == 0 {
		cmd.Println("No documents")
	}
	for _, d := range docs {
		cmd.Printf("%s  %-10s  %s\n", d.ID, d.ChunkingStatus, d.Slug)
	}

	if app.TaskQueue != nil {
		stats, err := app.TaskQueue.Stats(ctx)
		if err != nil {
			return fmt.Errorf("queue stats: %w", err)
		}
		cmd.Printf("\nQueue (%s): %d pending, %d processing, %d completed, %d failed\n",
			app.Backend, stats.PendingCount, stats.ProcessingCount, stats.CompletedCount, stats.FailedCount)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// summary copies doc without its extracted text
func summary(doc *domain.Document) *domain.Document {
	cp := *doc
	cp.ExtractedText = ""
	return &cp
}
