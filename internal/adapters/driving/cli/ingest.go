package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
)

var (
	ingestOwner       string
	ingestName        string
	ingestCategory    string
	ingestDescription string
	ingestPublic      bool
	ingestAsync       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Register a document and chunk it",
	Long: `Registers a PDF, DOCX or plain text file as a document, then parses,
chunks and embeds it. With --async the document is only queued and a
running worker picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "owning user ID")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "document category")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "document description")
	ingestCmd.Flags().BoolVar(&ingestPublic, "public", false, "make the document visible to every user")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue the document instead of processing it now")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	doc, err := app.DocumentService.Create(ctx, driving.CreateDocumentInput{
		File:          args[0],
		Owner:         ingestOwner,
		Name:          ingestName,
		Category:      ingestCategory,
		Description:   ingestDescription,
		IsPublic:      ingestPublic,
		ProcessInline: !ingestAsync,
	})
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	cmd.Printf("Created document %s (%s)\n", doc.ID, doc.Slug)

	if ingestAsync {
		cmd.Println("Queued for processing")
		return nil
	}

	doc, err = app.IngestionService.Process(ctx, doc.ID)
	if err != nil {
		if doc != nil {
			cmd.Printf("Chunking failed: %s\n", doc.LastError)
		}
		return err
	}

	count, err := app.Chunks.CountByDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	cmd.Printf("Status: %s, %d chunks\n", doc.ChunkingStatus, count)
	if count == 0 && doc.ChunkingStatus == domain.ChunkingStatusDone {
		cmd.Println("No text was extracted from the file")
	}
	return nil
}
