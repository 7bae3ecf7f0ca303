package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

const snippetLength = 120

var (
	queryUser      string
	queryStaff     bool
	queryDocuments []string
	queryPublic    string
	queryTop       int
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search chunks by similarity",
	Long: `Embeds the query and ranks the chunks the user may see by cosine distance.
Users see their own documents and public ones; --staff sees everything.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "user the query runs as")
	queryCmd.Flags().BoolVar(&queryStaff, "staff", false, "search every document regardless of owner")
	queryCmd.Flags().StringSliceVar(&queryDocuments, "document", nil, "restrict to documents with these slugs (repeatable)")
	queryCmd.Flags().StringVar(&queryPublic, "public", "", "'true' for public documents only, 'false' for private only")
	queryCmd.Flags().IntVarP(&queryTop, "top", "n", 0, "number of results (defaults to SEARCH_TOP_N)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	visibility, err := domain.ParseVisibility(queryPublic)
	if err != nil {
		return err
	}

	principal := domain.Principal{UserID: queryUser, IsStaff: queryStaff}
	opts := domain.SearchOptions{
		TopN:          queryTop,
		DocumentSlugs: queryDocuments,
		Visibility:    visibility,
	}

	result, err := app.SearchService.Search(cmd.Context(), principal, args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(result.Results) == 0 {
		cmd.Println("No results found")
		return nil
	}
	cmd.Printf("Results: %d (%s)\n\n", len(result.Results), result.Took)
	for i, r := range result.Results {
		cmd.Printf("%d. [%.4f] %s #%d\n", i+1, r.Distance, r.Chunk.DocumentID, r.Chunk.ChunkIndex)
		cmd.Printf("   %s\n", snippet(r.Chunk.Content))
	}
	return nil
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
