package mocks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// MockParser is a mock implementation of Parser for testing
type MockParser struct {
	ExtensionsFn func() []string
	ParseFn      func(path string) (string, error)
}

func NewMockParser() *MockParser {
	return &MockParser{}
}

func (m *MockParser) Parse(ctx context.Context, path string) (string, error) {
	if m.ParseFn != nil {
		return m.ParseFn(path)
	}
	return "parsed " + filepath.Base(path), nil
}

func (m *MockParser) Extensions() []string {
	if m.ExtensionsFn != nil {
		return m.ExtensionsFn()
	}
	return []string{".txt"}
}

// MockParserRegistry serves extracted text from memory keyed by path.
// Paths without a registered text fail like an unknown extension.
type MockParserRegistry struct {
	Texts   map[string]string
	Errors  map[string]error
	ParseFn func(path string) (string, error)
}

func NewMockParserRegistry() *MockParserRegistry {
	return &MockParserRegistry{
		Texts:  make(map[string]string),
		Errors: make(map[string]error),
	}
}

func (m *MockParserRegistry) Get(ext string) driven.Parser {
	return nil
}

func (m *MockParserRegistry) Register(parser driven.Parser) {}

func (m *MockParserRegistry) Parse(ctx context.Context, path string) (string, error) {
	if m.ParseFn != nil {
		return m.ParseFn(path)
	}
	if err, ok := m.Errors[path]; ok {
		return "", err
	}
	if text, ok := m.Texts[path]; ok {
		return text, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, strings.ToLower(filepath.Ext(path)))
}

func (m *MockParserRegistry) Extensions() []string {
	return []string{".doc", ".docx", ".pdf", ".txt"}
}
