package domain

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ChunkingStatus tracks where a document is in the chunking lifecycle
type ChunkingStatus string

const (
	ChunkingStatusPending    ChunkingStatus = "pending"
	ChunkingStatusProcessing ChunkingStatus = "processing"
	ChunkingStatusDone       ChunkingStatus = "done"
	ChunkingStatusError      ChunkingStatus = "error"
)

// IsValid reports whether s is one of the known statuses
func (s ChunkingStatus) IsValid() bool {
	switch s {
	case ChunkingStatusPending, ChunkingStatusProcessing, ChunkingStatusDone, ChunkingStatusError:
		return true
	}
	return false
}

// Document is an uploaded file and the state of its chunking pass
type Document struct {
	ID             string         `json:"id"`
	Owner          string         `json:"owner"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Category       string         `json:"category,omitempty"`
	Description    string         `json:"description,omitempty"`
	IsPublic       bool           `json:"is_public"`
	File           string         `json:"file"` // Path to the source file
	ExtractedText  string         `json:"extracted_text,omitempty"`
	ChunkingStatus ChunkingStatus `json:"chunking_status"`
	ChunkingDone   bool           `json:"chunking_done"`
	LastError      string         `json:"last_error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Extension returns the lower-cased file extension including the dot
func (d *Document) Extension() string {
	return strings.ToLower(filepath.Ext(d.File))
}

// MarkProcessing moves the document into the processing state
func (d *Document) MarkProcessing() {
	d.ChunkingStatus = ChunkingStatusProcessing
	d.UpdatedAt = time.Now()
}

// MarkDone records a successful chunking pass
func (d *Document) MarkDone(extractedText string) {
	d.ExtractedText = extractedText
	d.ChunkingStatus = ChunkingStatusDone
	d.ChunkingDone = true
	d.LastError = ""
	d.UpdatedAt = time.Now()
}

// MarkFailed records a failed chunking pass
func (d *Document) MarkFailed(reason string) {
	d.ChunkingStatus = ChunkingStatusError
	d.LastError = reason
	d.UpdatedAt = time.Now()
}

// CanRetry reports whether the document may go through the retry path
func (d *Document) CanRetry(maxRetries int) bool {
	return d.ChunkingStatus == ChunkingStatusError && !d.ChunkingDone && d.RetryCount < maxRetries
}

// ResetForRetry puts a failed document back to pending and counts the attempt
func (d *Document) ResetForRetry() {
	d.RetryCount++
	d.ChunkingStatus = ChunkingStatusPending
	d.UpdatedAt = time.Now()
}

// Chunk is a token-bounded slice of a document's text with its embedding
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Title      string    `json:"title,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasEmbedding reports whether the chunk can take part in similarity ranking
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// DocumentWithChunks combines a document with its chunks
type DocumentWithChunks struct {
	Document *Document `json:"document"`
	Chunks   []*Chunk  `json:"chunks"`
}

// DocumentFilter narrows document listings
type DocumentFilter struct {
	Owner      string
	Category   string
	Slug       string
	Status     ChunkingStatus
	Visibility Visibility
	Limit      int
	Offset     int
}

// NameFromPath derives a display name from a file path (its stem)
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Slugify lower-cases s and joins its alphanumeric runs with hyphens
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}
	return b.String()
}

// maxDocumentRetryBackoff caps the wait between automatic document retries
const maxDocumentRetryBackoff = time.Hour

// DocumentRetryBackoff is how long a failed document waits before its next
// automatic retry: 2^retryCount minutes, capped at one hour.
func DocumentRetryBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 6 {
		return maxDocumentRetryBackoff
	}
	return time.Duration(1<<retryCount) * time.Minute
}

// RetryDue reports whether an automatic retry may run at now
func (d *Document) RetryDue(now time.Time, maxRetries int) bool {
	return d.CanRetry(maxRetries) && !now.Before(d.UpdatedAt.Add(DocumentRetryBackoff(d.RetryCount)))
}
