package driven

import (
	"context"
)

// Parser extracts plain text from a file of a given format.
type Parser interface {
	// Parse reads the file at path and returns its text.
	// Failures wrap domain.ErrParseFailure.
	Parse(ctx context.Context, path string) (string, error)

	// Extensions returns the lower-cased extensions (with dot) this parser handles
	Extensions() []string
}

// ParserRegistry dispatches files to parsers by extension.
type ParserRegistry interface {
	// Get returns the parser for an extension (case-insensitive), or nil
	Get(ext string) Parser

	// Register registers a parser for all of its extensions
	Register(parser Parser)

	// Parse selects a parser from the path's extension and runs it.
	// Unknown extensions return domain.ErrUnsupportedFileType.
	Parse(ctx context.Context, path string) (string, error)

	// Extensions returns all registered extensions, sorted
	Extensions() []string
}
