package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/parsers/docx"
	"github.com/custodia-labs/smartchunk/internal/parsers/pdf"
	"github.com/custodia-labs/smartchunk/internal/parsers/plaintext"
)

// Verify interface compliance
var _ driven.ParserRegistry = (*Registry)(nil)

// Registry implements ParserRegistry with extension-based selection.
// A later registration for the same extension replaces the earlier one.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]driven.Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]driven.Parser),
	}
}

// DefaultRegistry creates a registry handling .txt, .pdf, .doc and .docx.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(pdf.New())
	r.Register(docx.New())
	return r
}

// Register registers a parser for each of its extensions.
func (r *Registry) Register(parser driven.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range parser.Extensions() {
		r.parsers[normaliseExt(ext)] = parser
	}
}

// Get returns the parser for an extension, or nil.
func (r *Registry) Get(ext string) driven.Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parsers[normaliseExt(ext)]
}

// Parse extracts text from the file at path using the parser for its extension.
func (r *Registry) Parse(ctx context.Context, path string) (string, error) {
	ext := normaliseExt(filepath.Ext(path))
	parser := r.Get(ext)
	if parser == nil {
		if ext == "" {
			return "", fmt.Errorf("%w: %s has no extension", domain.ErrUnsupportedFileType, filepath.Base(path))
		}
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return parser.Parse(ctx, path)
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// normaliseExt lower-cases an extension and ensures a leading dot.
func normaliseExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
