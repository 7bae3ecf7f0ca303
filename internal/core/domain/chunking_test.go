package domain

import (
	"errors"
	"testing"
)

func TestDefaultChunkConfig(t *testing.T) {
	cfg := DefaultChunkConfig()

	if cfg.MaxTokens != 500 {
		t.Errorf("expected max tokens 500, got %d", cfg.MaxTokens)
	}
	if cfg.Overlap != 50 {
		t.Errorf("expected overlap 50, got %d", cfg.Overlap)
	}
	if cfg.Stride() != 450 {
		t.Errorf("expected stride 450, got %d", cfg.Stride())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestChunkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkConfig
		wantErr bool
	}{
		{"valid", ChunkConfig{MaxTokens: 10, Overlap: 2}, false},
		{"zero overlap", ChunkConfig{MaxTokens: 10, Overlap: 0}, false},
		{"overlap just below max", ChunkConfig{MaxTokens: 10, Overlap: 9}, false},
		{"overlap equals max", ChunkConfig{MaxTokens: 10, Overlap: 10}, true},
		{"overlap above max", ChunkConfig{MaxTokens: 10, Overlap: 11}, true},
		{"negative overlap", ChunkConfig{MaxTokens: 10, Overlap: -1}, true},
		{"zero max", ChunkConfig{MaxTokens: 0, Overlap: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChunkConfig) {
					t.Errorf("expected ErrInvalidChunkConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
