package domain

import (
	"testing"
	"time"
)

func TestDocument_Extension(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"/uploads/report.PDF", ".pdf"},
		{"notes.txt", ".txt"},
		{"archive.tar.gz", ".gz"},
		{"Makefile", ""},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			doc := &Document{File: tt.file}
			if got := doc.Extension(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDocument_Lifecycle(t *testing.T) {
	doc := &Document{ID: "doc-1", ChunkingStatus: ChunkingStatusPending}

	doc.MarkProcessing()
	if doc.ChunkingStatus != ChunkingStatusProcessing {
		t.Errorf("expected processing, got %s", doc.ChunkingStatus)
	}

	doc.MarkFailed("boom")
	if doc.ChunkingStatus != ChunkingStatusError {
		t.Errorf("expected error, got %s", doc.ChunkingStatus)
	}
	if doc.LastError != "boom" {
		t.Errorf("expected last error boom, got %q", doc.LastError)
	}
	if doc.ChunkingDone {
		t.Error("failed document must not be marked done")
	}

	if !doc.CanRetry(3) {
		t.Error("expected failed document to be retryable")
	}
	doc.ResetForRetry()
	if doc.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", doc.RetryCount)
	}
	if doc.ChunkingStatus != ChunkingStatusPending {
		t.Errorf("expected pending after reset, got %s", doc.ChunkingStatus)
	}

	doc.MarkProcessing()
	doc.MarkDone("hello world")
	if !doc.ChunkingDone {
		t.Error("expected chunking done")
	}
	if doc.ChunkingStatus != ChunkingStatusDone {
		t.Errorf("expected done, got %s", doc.ChunkingStatus)
	}
	if doc.LastError != "" {
		t.Errorf("expected last error cleared, got %q", doc.LastError)
	}
	if doc.ExtractedText != "hello world" {
		t.Errorf("unexpected extracted text %q", doc.ExtractedText)
	}
	if doc.CanRetry(3) {
		t.Error("done document must not be retryable")
	}
}

func TestDocument_CanRetry_Limit(t *testing.T) {
	doc := &Document{ChunkingStatus: ChunkingStatusError, RetryCount: 3}
	if doc.CanRetry(3) {
		t.Error("expected retry limit to block retry")
	}
	if !doc.CanRetry(4) {
		t.Error("expected retry below the limit to be allowed")
	}
}

func TestChunkingStatus_IsValid(t *testing.T) {
	for _, s := range []ChunkingStatus{ChunkingStatusPending, ChunkingStatusProcessing, ChunkingStatusDone, ChunkingStatusError} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ChunkingStatus("queued").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestChunk_HasEmbedding(t *testing.T) {
	chunk := &Chunk{
		ID:         "chunk-1",
		DocumentID: "doc-1",
		ChunkIndex: 0,
		Content:    "content",
		TokenCount: 1,
		CreatedAt:  time.Now(),
	}
	if chunk.HasEmbedding() {
		t.Error("expected chunk without embedding")
	}
	chunk.Embedding = []float32{0.1, 0.2}
	if !chunk.HasEmbedding() {
		t.Error("expected chunk with embedding")
	}
}

func TestNameFromPath(t *testing.T) {
	tests := map[string]string{
		"/data/uploads/Annual Report.pdf": "Annual Report",
		"notes.txt":                       "notes",
		"dir/no_extension":                "no_extension",
	}
	for in, want := range tests {
		if got := NameFromPath(in); got != want {
			t.Errorf("NameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Annual Report", "annual-report"},
		{"  Q3 -- results!  ", "q3-results"},
		{"already-a-slug", "already-a-slug"},
		{"snake_case name", "snake_case-name"},
		{"Ünïcode Tïtle", "ünïcode-tïtle"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDocumentRetryBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{5, 32 * time.Minute},
		{6, time.Hour},
		{50, time.Hour},
	}
	for _, tt := range tests {
		if got := DocumentRetryBackoff(tt.retries); got != tt.want {
			t.Errorf("DocumentRetryBackoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}

func TestDocument_RetryDue(t *testing.T) {
	now := time.Now()
	doc := &Document{
		ChunkingStatus: ChunkingStatusError,
		RetryCount:     1,
		UpdatedAt:      now.Add(-time.Minute),
	}

	if doc.RetryDue(now, 3) {
		t.Error("expected retry to wait for the 2 minute backoff")
	}
	if !doc.RetryDue(now.Add(time.Minute), 3) {
		t.Error("expected retry to be due once the backoff elapsed")
	}
	if doc.RetryDue(now.Add(time.Hour), 1) {
		t.Error("expected no retry at the retry limit")
	}

	doc.ChunkingStatus = ChunkingStatusDone
	if doc.RetryDue(now.Add(time.Hour), 3) {
		t.Error("expected no retry for a finished document")
	}
}
