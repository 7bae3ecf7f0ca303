package services

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/smartchunk/internal/chunking"
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
)

// pipelineFixture wires the ingestion service to in-memory ports. The mock
// tokenizer counts one token per rune, so text length controls chunk count.
type pipelineFixture struct {
	documents *mocks.MockDocumentStore
	chunks    *mocks.MockChunkStore
	parsers   *mocks.MockParserRegistry
	embedder  *mocks.MockEmbeddingService
	lock      *mocks.MockDistributedLock
	config    IngestionConfig
	ingestion driving.IngestionService
}

func newPipelineFixture(t testing.TB, cfg domain.ChunkConfig) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		documents: mocks.NewMockDocumentStore(),
		chunks:    mocks.NewMockChunkStore(),
		parsers:   mocks.NewMockParserRegistry(),
		embedder:  mocks.NewMockEmbeddingService(),
		lock:      mocks.NewMockDistributedLock(),
	}
	f.chunks.Documents = f.documents

	tok := mocks.NewMockTokenizer()
	chunker, err := chunking.NewChunker(tok, cfg)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	f.config = IngestionConfig{
		Documents:  f.documents,
		Chunks:     f.chunks,
		Parsers:    f.parsers,
		Chunker:    chunker,
		Assembler:  chunking.NewAssembler(tok, f.embedder, chunking.AssemblerConfig{BatchSize: 1, Concurrency: 1}),
		Lock:       f.lock,
		MaxRetries: 2,
	}
	f.ingestion = NewIngestionService(f.config)
	return f
}

// withLockTTL rebuilds the ingestion service with a short document lock TTL
func (f *pipelineFixture) withLockTTL(ttl time.Duration) {
	f.config.LockTTL = ttl
	f.ingestion = NewIngestionService(f.config)
}

// addDocument stores a pending document whose file parses to text
func (f *pipelineFixture) addDocument(t testing.TB, id, file, text string) *domain.Document {
	t.Helper()
	now := time.Now()
	doc := &domain.Document{
		ID:             id,
		Owner:          "owner-1",
		Name:           domain.NameFromPath(file),
		Slug:           domain.Slugify(domain.NameFromPath(file)),
		File:           file,
		ChunkingStatus: domain.ChunkingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.parsers.Texts[file] = text
	if err := f.documents.Save(context.Background(), doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	return doc
}

func (f *pipelineFixture) reload(t testing.TB, id string) *domain.Document {
	t.Helper()
	doc, err := f.documents.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get document %s: %v", id, err)
	}
	return doc
}
