package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

const (
	DefaultModel      = "text-embedding-3-small"
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3

	maxBackoff = 20 * time.Second
)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedding implements EmbeddingService against any OpenAI-compatible
// POST {base}/embeddings endpoint.
type OpenAIEmbedding struct {
	apiKey      string
	model       string
	baseURL     string
	dimensions  int
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
	client      *http.Client
	logger      *slog.Logger
}

// NewOpenAIEmbedding creates a new OpenAI embedding service
func NewOpenAIEmbedding(cfg Config) (*OpenAIEmbedding, error) {
	if cfg.APIKey == "" && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrInvalidInput)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dimensions <= 0 {
		dims, ok := openAIModelDimensions[cfg.Model]
		if !ok {
			dims = domain.EmbeddingDimensions
		}
		cfg.Dimensions = dims
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	e := &OpenAIEmbedding{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		dimensions:  cfg.Dimensions,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: 500 * time.Millisecond,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e, nil
}

// embeddingRequest is the request body for OpenAI embedding API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// embeddingResponse is the response from OpenAI embedding API
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// statusError is a non-200 reply; retryable for 429 and 5xx
type statusError struct {
	status     int
	message    string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// Embed generates embeddings for multiple texts, in input order.
// An empty text yields domain.ErrEmptyInput without calling the API.
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrEmptyInput, i)
		}
	}

	resp, err := e.doWithRetry(ctx, embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("%w: response index %d out of range", domain.ErrEmbeddingFailed, d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, v := range embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no embedding returned for text %d", domain.ErrEmbeddingFailed, i)
		}
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrEmbeddingFailed, e.dimensions, len(v))
		}
	}
	return embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, domain.ErrEmptyInput
	}
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// doWithRetry retries network errors, 429 and 5xx with exponential backoff.
func (e *OpenAIEmbedding) doWithRetry(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt, lastErr)
			e.logger.Warn("retrying embedding request",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, ctx.Err())
			case <-time.After(delay):
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrEmbeddingFailed, err)
			}
		}

		resp, err := e.doRequest(ctx, reqBody)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !e.shouldRetry(ctx, err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, lastErr)
}

func (e *OpenAIEmbedding) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	var de *decodeError
	return !errors.As(err, &de)
}

func (e *OpenAIEmbedding) backoff(attempt int, lastErr error) time.Duration {
	var se *statusError
	if errors.As(lastErr, &se) && se.retryAfter > 0 {
		return min(se.retryAfter, maxBackoff)
	}
	delay := e.baseBackoff << (attempt - 1)
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// decodeError is a malformed body; never retried
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "failed to parse response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// doRequest makes a single request bounded by the per-request timeout
func (e *OpenAIEmbedding) doRequest(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &decodeError{err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &decodeError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embResp embeddingResponse
	jsonErr := json.Unmarshal(respBody, &embResp)

	if resp.StatusCode != http.StatusOK {
		se := &statusError{status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		if jsonErr == nil && embResp.Error != nil {
			se.message = embResp.Error.Message
		}
		return nil, se
	}
	if jsonErr != nil {
		return nil, &decodeError{err: jsonErr}
	}
	if embResp.Error != nil {
		return nil, &statusError{status: resp.StatusCode, message: embResp.Error.Message}
	}
	return &embResp, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
