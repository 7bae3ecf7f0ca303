package plaintext

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.Parser = (*Parser)(nil)

// Parser reads UTF-8 text files verbatim.
type Parser struct{}

// New creates a new plain text parser.
func New() *Parser {
	return &Parser{}
}

// Extensions returns the extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".txt"}
}

// Parse returns the file content unchanged. Content that is not valid UTF-8 is rejected.
func (p *Parser) Parse(_ context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrParseFailure, path)
	}
	return string(content), nil
}
