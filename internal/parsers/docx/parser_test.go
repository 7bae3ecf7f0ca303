package docx

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// writeDocx builds a minimal .docx archive with the given document.xml body
func writeDocx(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for partName, content := range parts {
		w, err := zw.Create(partName)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`
}

func TestParser_Parse(t *testing.T) {
	body := `<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Tab</w:t><w:tab/><w:t>bed</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">  spaced  </w:t></w:r></w:p>` +
		`<w:sectPr/>`
	path := writeDocx(t, "report.docx", map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"word/document.xml":   documentXML(body),
	})

	text, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n\nTab\tbed\n  spaced  ", text)
}

func TestParser_EmptyDocument(t *testing.T) {
	path := writeDocx(t, "empty.docx", map[string]string{
		"word/document.xml": documentXML(""),
	})

	text, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestParser_MissingDocumentPart(t *testing.T) {
	path := writeDocx(t, "broken.docx", map[string]string{
		"word/styles.xml": "<w:styles/>",
	})

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestParser_MalformedXML(t *testing.T) {
	path := writeDocx(t, "bad.docx", map[string]string{
		"word/document.xml": `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>unclosed`,
	})

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestParser_LegacyDoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.doc")
	// OLE2 compound file signature
	header := "\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1" + strings.Repeat("\x00", 504)
	require.NoError(t, os.WriteFile(path, []byte(header), 0o600))

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestParser_Extensions(t *testing.T) {
	assert.Equal(t, []string{".doc", ".docx"}, New().Extensions())
}

func TestParser_SkipsTableParagraphs(t *testing.T) {
	body := `<w:p><w:r><w:t>Before</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell one</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>cell two</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>After</w:t></w:r></w:p>`
	path := writeDocx(t, "table.docx", map[string]string{
		"word/document.xml": documentXML(body),
	})

	text, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Before\nAfter", text)
}
