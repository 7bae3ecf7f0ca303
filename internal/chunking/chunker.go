package chunking

import (
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Chunker slides a fixed token window with overlap across a document.
// It is immutable after construction and safe for concurrent use.
type Chunker struct {
	tokenizer driven.Tokenizer
	config    domain.ChunkConfig
}

// NewChunker creates a chunker. Invalid window settings fail here, before any
// text is tokenized or embedded.
func NewChunker(tokenizer driven.Tokenizer, config domain.ChunkConfig) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		tokenizer: tokenizer,
		config:    config,
	}, nil
}

// Config returns the window settings.
func (c *Chunker) Config() domain.ChunkConfig {
	return c.config
}

// Chunk tokenizes text once and decodes each window back to text.
//
// Windows start at 0 and advance by MaxTokens-Overlap. The last window is the
// first one that reaches the end of the token sequence, so a text of at most
// MaxTokens tokens yields exactly one chunk and no window is fully contained
// in its predecessor. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []domain.RawChunk {
	tokens := c.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return []domain.RawChunk{}
	}

	stride := c.config.Stride()
	chunks := make([]domain.RawChunk, 0, ExpectedChunks(len(tokens), c.config))

	for start := 0; ; start += stride {
		end := start + c.config.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, domain.RawChunk{
			Index:      len(chunks),
			Content:    c.tokenizer.Decode(tokens[start:end]),
			StartToken: start,
			EndToken:   end,
		})
		if end == len(tokens) {
			break
		}
	}

	// A whole-text window decodes to the input verbatim.
	if len(chunks) == 1 {
		chunks[0].Content = text
	}
	return chunks
}

// ExpectedChunks is the number of windows Chunk produces for n tokens:
// ceil((n - overlap) / stride) for n > 0.
func ExpectedChunks(n int, config domain.ChunkConfig) int {
	if n <= 0 {
		return 0
	}
	if n <= config.MaxTokens {
		return 1
	}
	stride := config.Stride()
	return (n - config.Overlap + stride - 1) / stride
}
