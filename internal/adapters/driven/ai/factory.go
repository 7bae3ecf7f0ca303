package ai

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Provider selects the embedding backend
type Provider string

const (
	// ProviderOpenAI calls api.openai.com (or an OPENAI_BASE_URL proxy) with a bearer key
	ProviderOpenAI Provider = "openai"
	// ProviderOllama calls a local Ollama server's OpenAI-compatible endpoint; no key
	ProviderOllama Provider = "ollama"
)

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible API root
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// Config holds embedding client settings
type Config struct {
	Provider   Provider
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int // 0 resolves from the model name

	// Timeout bounds each HTTP attempt
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond enables client-side rate limiting when > 0
	RequestsPerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewEmbeddingService creates the embedding service for cfg.Provider.
// The store's vector column is fixed width, so a model whose dimension
// differs from domain.EmbeddingDimensions is rejected.
func NewEmbeddingService(cfg Config) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		cfg.Provider = ProviderOpenAI
	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaBaseURL
		}
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, cfg.Provider)
	}

	svc, err := NewOpenAIEmbedding(cfg)
	if err != nil {
		return nil, err
	}
	if svc.Dimensions() != domain.EmbeddingDimensions {
		return nil, fmt.Errorf("%w: model %s produces %d dimensions, store expects %d",
			domain.ErrInvalidInput, svc.Model(), svc.Dimensions(), domain.EmbeddingDimensions)
	}
	return svc, nil
}
