package driving

import (
	"context"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// SearchService answers similarity queries over stored chunks
type SearchService interface {
	// Search returns the chunks closest to query that the principal may see
	Search(ctx context.Context, principal domain.Principal, query string, opts domain.SearchOptions) (*domain.SearchResult, error)
}
