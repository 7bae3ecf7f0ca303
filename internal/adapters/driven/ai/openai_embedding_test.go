package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/smartchunk/internal/core/domain"
)

// embeddingHandler answers with vectors of dims whose first element is the input index
func embeddingHandler(t *testing.T, dims int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		// Reverse order to check the client sorts by index
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dims)
			v[0] = float32(i)
			data = append(data, item{Index: i, Embedding: v})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}
}

func fakeEmbeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(embeddingHandler(t, dims))
}

func newTestEmbedding(t *testing.T, baseURL string, dims int) *OpenAIEmbedding {
	t.Helper()
	svc, err := NewOpenAIEmbedding(Config{
		APIKey:     "sk-test",
		BaseURL:    baseURL,
		Dimensions: dims,
		MaxRetries: 2,
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	svc.baseBackoff = time.Millisecond
	return svc
}

func TestNewOpenAIEmbedding_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedding(Config{Model: DefaultModel})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewOpenAIEmbedding_Defaults(t *testing.T) {
	svc, err := NewOpenAIEmbedding(Config{APIKey: "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, svc.Model())
	assert.Equal(t, DefaultBaseURL, svc.baseURL)
	assert.Equal(t, DefaultTimeout, svc.timeout)
	assert.Nil(t, svc.limiter)
}

func TestOpenAIEmbedding_Dimensions(t *testing.T) {
	testCases := []struct {
		model      string
		dimensions int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"unknown-model", domain.EmbeddingDimensions},
	}

	for _, tc := range testCases {
		t.Run(tc.model, func(t *testing.T) {
			svc, err := NewOpenAIEmbedding(Config{APIKey: "sk-test", Model: tc.model})
			require.NoError(t, err)
			assert.Equal(t, tc.dimensions, svc.Dimensions())
		})
	}
}

func TestOpenAIEmbedding_Embed(t *testing.T) {
	var auth, path string
	handler := embeddingHandler(t, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		handler(w, r)
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL+"/v1/", 4)
	vectors, err := svc.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Len(t, v, 4)
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/v1/embeddings", path)
}

func TestOpenAIEmbedding_EmptyInput(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()
	svc := newTestEmbedding(t, server.URL, 4)

	_, err := svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.False(t, errors.Is(err, domain.ErrEmbeddingFailed))

	_, err = svc.Embed(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	vectors, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)

	assert.Zero(t, calls.Load())
}

func TestOpenAIEmbedding_WhitespaceQueryReachesModel(t *testing.T) {
	var calls atomic.Int32
	ok := embeddingHandler(t, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ok(w, r)
	}))
	defer server.Close()
	svc := newTestEmbedding(t, server.URL, 4)

	v, err := svc.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedding_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ok := embeddingHandler(t, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			ok(w, r)
		}
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	v, err := svc.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIEmbedding_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	_, err := svc.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIEmbedding_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	_, err := svc.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedding_NetworkError(t *testing.T) {
	server := fakeEmbeddingServer(t, 4)
	url := server.URL
	server.Close()

	svc := newTestEmbedding(t, url, 4)
	_, err := svc.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
}

func TestOpenAIEmbedding_DimensionMismatch(t *testing.T) {
	server := fakeEmbeddingServer(t, 3)
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	_, err := svc.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "expected 4 dimensions, got 3")
}

func TestOpenAIEmbedding_MalformedResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	_, err := svc.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedding_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	svc.baseBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.EmbedQuery(ctx, "query")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIEmbedding_RateLimited(t *testing.T) {
	server := fakeEmbeddingServer(t, 4)
	defer server.Close()

	svc, err := NewOpenAIEmbedding(Config{APIKey: "sk-test", BaseURL: server.URL, Dimensions: 4, RequestsPerSecond: 20})
	require.NoError(t, err)
	require.NotNil(t, svc.limiter)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := svc.EmbedQuery(context.Background(), "query")
		require.NoError(t, err)
	}
	// Burst of 1 at 20 rps: the 2nd and 3rd requests wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestOpenAIEmbedding_HealthCheckAndClose(t *testing.T) {
	server := fakeEmbeddingServer(t, 4)
	defer server.Close()

	svc := newTestEmbedding(t, server.URL, 4)
	assert.NoError(t, svc.HealthCheck(context.Background()))
	assert.NoError(t, svc.Close())
}
