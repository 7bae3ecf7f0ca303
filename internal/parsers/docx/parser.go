package docx

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.Parser = (*Parser)(nil)

const documentPart = "word/document.xml"

// Parser extracts paragraph text from Word documents.
// Legacy binary .doc files are not zip archives and fail as parse errors.
type Parser struct{}

// New creates a new Word document parser.
func New() *Parser {
	return &Parser{}
}

// Extensions returns the extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".doc", ".docx"}
}

// Parse joins the text of every body paragraph with "\n".
func (p *Parser) Parse(_ context.Context, path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrParseFailure, path, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != documentPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return "", fmt.Errorf("%w: %s missing from %s", domain.ErrParseFailure, documentPart, path)
}

// parseDocumentXML streams word/document.xml. Only paragraphs (w:p) directly
// under w:body count, so table cells and other nested containers are skipped.
// Text runs (w:t) are concatenated within a paragraph; tabs and breaks inside a
// run become whitespace.
func parseDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		depth      int
		bodyDepth  int
		paraDepth  int
		inText     bool
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "body":
				if bodyDepth == 0 {
					bodyDepth = depth
				}
			case "p":
				if bodyDepth > 0 && paraDepth == 0 && depth == bodyDepth+1 {
					current.Reset()
					paraDepth = depth
				}
			case "t":
				inText = paraDepth > 0
			case "tab":
				if paraDepth > 0 {
					current.WriteString("\t")
				}
			case "br", "cr":
				if paraDepth > 0 {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "body":
				if depth == bodyDepth {
					bodyDepth = 0
				}
			case "p":
				if paraDepth > 0 && depth == paraDepth {
					paragraphs = append(paragraphs, current.String())
					paraDepth = 0
				}
			case "t":
				inText = false
			}
			depth--
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}
