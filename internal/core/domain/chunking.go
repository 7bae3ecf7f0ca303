package domain

import "fmt"

// EmbeddingDimensions is the width of the stored embedding column.
const EmbeddingDimensions = 1536

// Default window settings for the token chunker
const (
	DefaultMaxTokens = 500
	DefaultOverlap   = 50
)

// ChunkConfig holds the token window settings
type ChunkConfig struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	Overlap   int `json:"overlap" yaml:"overlap"`
}

// DefaultChunkConfig returns the 500/50 window
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokens: DefaultMaxTokens,
		Overlap:   DefaultOverlap,
	}
}

// Stride returns how far the window start advances between chunks
func (c ChunkConfig) Stride() int {
	return c.MaxTokens - c.Overlap
}

// Validate rejects settings that would never advance the window
func (c ChunkConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidChunkConfig, c.MaxTokens)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkConfig, c.Overlap)
	}
	if c.Overlap >= c.MaxTokens {
		return fmt.Errorf("%w: overlap (%d) must be smaller than max_tokens (%d)",
			ErrInvalidChunkConfig, c.Overlap, c.MaxTokens)
	}
	return nil
}

// RawChunk is one decoded token window before token counting and embedding
type RawChunk struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	StartToken int    `json:"start_token"`
	EndToken   int    `json:"end_token"` // exclusive
}
