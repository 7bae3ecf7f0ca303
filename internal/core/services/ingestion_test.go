package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

func TestIngestionService_Process(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	text := strings.Repeat("t", 1200)
	f.addDocument(t, "doc-1", "/uploads/report.txt", text)

	doc, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, domain.ChunkingStatusDone, doc.ChunkingStatus)
	assert.True(t, doc.ChunkingDone)
	assert.Empty(t, doc.LastError)
	assert.Equal(t, text, doc.ExtractedText)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusDone, stored.ChunkingStatus)

	chunks, err := f.chunks.GetByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.LessOrEqual(t, ch.TokenCount, 500)
		assert.Len(t, ch.Embedding, f.embedder.Dimensions())
	}
	assert.Equal(t, 1, f.chunks.SaveBatchCalls())
	assert.Equal(t, []string{driven.DocumentLockName("doc-1")}, f.lock.Acquired())
	assert.False(t, f.lock.IsHeld(driven.DocumentLockName("doc-1")))
}

func TestIngestionService_Process_AtMostOnce(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "short text")

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	calls := f.embedder.Calls()

	doc, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkingStatusDone, doc.ChunkingStatus)
	assert.Equal(t, calls, f.embedder.Calls(), "second pass must not embed again")
	assert.Equal(t, 1, f.chunks.SaveBatchCalls())
}

func TestIngestionService_Process_EmptyText(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/blank.txt", "")

	doc, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkingStatusDone, doc.ChunkingStatus)
	assert.Zero(t, f.chunks.Count())
	assert.Zero(t, f.embedder.Calls())
}

func TestIngestionService_Process_UnsupportedFile(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/image.bin", "ignored")
	delete(f.parsers.Texts, "/uploads/image.bin")

	doc, err := f.ingestion.Process(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChunkingFailed)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	assert.Equal(t, domain.ChunkingStatusError, doc.ChunkingStatus)
	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusError, stored.ChunkingStatus)
	assert.Contains(t, stored.LastError, ".bin")
	assert.False(t, stored.ChunkingDone)
	assert.Zero(t, f.chunks.Count())
}

func TestIngestionService_Process_ParseFailure(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/broken.pdf", "")
	f.parsers.Errors["/uploads/broken.pdf"] = fmt.Errorf("%w: xref table not found", domain.ErrParseFailure)

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrParseFailure)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusError, stored.ChunkingStatus)
	assert.Contains(t, stored.LastError, "xref table not found")
}

func TestIngestionService_Process_EmbeddingFailureLeavesNoChunks(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/long.txt", strings.Repeat("e", 1200))
	f.embedder.FailAtText(2)

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusError, stored.ChunkingStatus)
	assert.Contains(t, stored.LastError, domain.ErrEmbeddingFailed.Error())
	assert.Zero(t, f.chunks.Count())
	assert.Zero(t, f.chunks.SaveBatchCalls())
}

func TestIngestionService_Process_StoreFailure(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "some text")
	f.chunks.SaveBatchFn = func(chunks []*domain.Chunk) error {
		return errors.New("connection reset")
	}

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrChunkingFailed)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusError, stored.ChunkingStatus)
	assert.Contains(t, stored.LastError, "connection reset")
	assert.Zero(t, f.chunks.Count())
}

func TestIngestionService_Process_Locked(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "text")
	f.lock.SetLockHeld(driven.DocumentLockName("doc-1"), time.Minute)

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentLocked)
	assert.Equal(t, domain.ChunkingStatusPending, f.reload(t, "doc-1").ChunkingStatus)
}

func TestIngestionService_Process_LockError(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "text")
	f.lock.AcquireFn = func(name string, ttl time.Duration) (bool, error) {
		return false, errors.New("redis down")
	}

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrChunkingFailed)
	assert.NotErrorIs(t, err, domain.ErrDocumentLocked)
}

func TestIngestionService_Process_NotFound(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())

	_, err := f.ingestion.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestionService_Retry(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", strings.Repeat("r", 600))
	f.embedder.FailAtText(1)

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.ErrorIs(t, err, domain.ErrChunkingFailed)

	f.embedder.FailAtText(0)
	doc, err := f.ingestion.Retry(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkingStatusDone, doc.ChunkingStatus)
	assert.Equal(t, 1, doc.RetryCount)
	assert.Empty(t, doc.LastError)

	count, err := f.chunks.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestionService_Retry_NotRetryable(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "text")

	_, err := f.ingestion.Retry(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotRetryable)

	_, err = f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	_, err = f.ingestion.Retry(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotRetryable)
}

func TestIngestionService_Retry_LimitReached(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.bin", "")
	delete(f.parsers.Texts, "/uploads/a.bin")

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.ErrorIs(t, err, domain.ErrChunkingFailed)

	// MaxRetries is 2 in the fixture
	for i := 1; i <= 2; i++ {
		doc, err := f.ingestion.Retry(context.Background(), "doc-1")
		require.ErrorIs(t, err, domain.ErrChunkingFailed)
		assert.Equal(t, i, doc.RetryCount)
	}

	_, err = f.ingestion.Retry(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrRetryLimitReached)
	assert.Equal(t, 2, f.reload(t, "doc-1").RetryCount)
}

func TestIngestionService_Process_FailedDocumentNeedsRetry(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	doc := f.addDocument(t, "doc-1", "/uploads/a.txt", "text")
	doc.MarkFailed("embedding service failure")
	doc.RetryCount = 2
	require.NoError(t, f.documents.Save(context.Background(), doc))

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotRetryable)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusError, stored.ChunkingStatus)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Zero(t, f.embedder.Calls())
	assert.Zero(t, f.chunks.Count())
	assert.False(t, f.lock.IsHeld(driven.DocumentLockName("doc-1")))
}

func TestIngestionService_Process_ResumesInterruptedPass(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	doc := f.addDocument(t, "doc-1", "/uploads/a.txt", "text")
	doc.MarkProcessing()
	require.NoError(t, f.documents.Save(context.Background(), doc))

	got, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkingStatusDone, got.ChunkingStatus)
}

func TestIngestionService_Process_ExtendsLockDuringLongPass(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "")
	f.withLockTTL(15 * time.Millisecond)
	f.parsers.ParseFn = func(path string) (string, error) {
		time.Sleep(60 * time.Millisecond)
		return "slow text", nil
	}

	doc, err := f.ingestion.Process(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkingStatusDone, doc.ChunkingStatus)
	assert.GreaterOrEqual(t, f.lock.Extended(), 1)
	assert.False(t, f.lock.IsHeld(driven.DocumentLockName("doc-1")))
}

func TestIngestionService_Process_AbortsWhenLockLost(t *testing.T) {
	f := newPipelineFixture(t, domain.DefaultChunkConfig())
	f.addDocument(t, "doc-1", "/uploads/a.txt", "")
	f.withLockTTL(15 * time.Millisecond)
	f.lock.ExtendFn = func(name string, ttl time.Duration) error {
		return errors.New("lock expired")
	}
	f.parsers.ParseFn = func(path string) (string, error) {
		time.Sleep(60 * time.Millisecond)
		return "slow text", nil
	}

	_, err := f.ingestion.Process(context.Background(), "doc-1")
	require.ErrorIs(t, err, domain.ErrDocumentLocked)
	assert.NotErrorIs(t, err, domain.ErrChunkingFailed)

	stored := f.reload(t, "doc-1")
	assert.Equal(t, domain.ChunkingStatusProcessing, stored.ChunkingStatus, "state is left to the new lock holder")
	assert.Empty(t, stored.LastError)
	assert.Zero(t, f.chunks.Count())
}
