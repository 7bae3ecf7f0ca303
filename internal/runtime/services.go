package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/smartchunk/internal/adapters/driven/ai"
	"github.com/custodia-labs/smartchunk/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/smartchunk/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/smartchunk/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/smartchunk/internal/adapters/driven/redis"
	"github.com/custodia-labs/smartchunk/internal/adapters/driven/tokenizer"
	"github.com/custodia-labs/smartchunk/internal/chunking"
	"github.com/custodia-labs/smartchunk/internal/config"
	"github.com/custodia-labs/smartchunk/internal/core/domain"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driven"
	"github.com/custodia-labs/smartchunk/internal/core/ports/driving"
	"github.com/custodia-labs/smartchunk/internal/core/services"
	"github.com/custodia-labs/smartchunk/internal/parsers"
	"github.com/custodia-labs/smartchunk/internal/retrieval"
)

// Adapters are the driven ports the core services run on.
type Adapters struct {
	Documents driven.DocumentStore
	Chunks    driven.ChunkStore
	TaskQueue driven.TaskQueue
	Lock      driven.DistributedLock
	Embedding driven.EmbeddingService
	Tokenizer driven.Tokenizer
	Parsers   driven.ParserRegistry
}

// Services holds the wired application: adapters, pipeline pieces and core services.
type Services struct {
	Config *config.Config
	Logger *slog.Logger
	Adapters

	// Backend names the queue/lock backend in use ("redis" or "postgres")
	Backend string

	Chunker   *chunking.Chunker
	Assembler *chunking.Assembler
	Retriever *retrieval.Retriever

	DocumentService  driving.DocumentService
	IngestionService driving.IngestionService
	SearchService    driving.SearchService
	RetryScheduler   driving.RetryScheduler // nil when disabled

	closers []func() error
}

// NewServices wires the core services on top of already built adapters.
func NewServices(cfg *config.Config, adapters Adapters, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chunker, err := chunking.NewChunker(adapters.Tokenizer, cfg.Chunking)
	if err != nil {
		return nil, err
	}
	assembler := chunking.NewAssembler(adapters.Tokenizer, adapters.Embedding, chunking.AssemblerConfig{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Logger:      logger,
	})
	retriever := retrieval.NewRetriever(adapters.Embedding, logger)

	s := &Services{
		Config:    cfg,
		Logger:    logger,
		Adapters:  adapters,
		Chunker:   chunker,
		Assembler: assembler,
		Retriever: retriever,
	}

	s.DocumentService = services.NewDocumentService(services.DocumentServiceConfig{
		Documents: adapters.Documents,
		Chunks:    adapters.Chunks,
		TaskQueue: adapters.TaskQueue,
		Logger:    logger,
	})
	s.IngestionService = services.NewIngestionService(services.IngestionConfig{
		Documents:  adapters.Documents,
		Chunks:     adapters.Chunks,
		Parsers:    adapters.Parsers,
		Chunker:    chunker,
		Assembler:  assembler,
		Lock:       adapters.Lock,
		Logger:     logger,
		MaxRetries: cfg.Ingestion.MaxRetries,
		LockTTL:    cfg.LockTTL(),
	})
	s.SearchService = services.NewSearchService(services.SearchServiceConfig{
		Chunks:      adapters.Chunks,
		Retriever:   retriever,
		DefaultTopN: cfg.Search.TopN,
		Logger:      logger,
	})
	if cfg.Ingestion.RetrySchedulerEnabled && adapters.TaskQueue != nil {
		s.RetryScheduler = services.NewRetryScheduler(services.RetrySchedulerConfig{
			Documents:    adapters.Documents,
			TaskQueue:    adapters.TaskQueue,
			Lock:         adapters.Lock,
			Logger:       logger,
			MaxRetries:   cfg.Ingestion.MaxRetries,
			PollInterval: cfg.RetryPollInterval(),
		})
	}
	return s, nil
}

// Connect builds every adapter from cfg and wires the services.
// Redis backs the queue and lock when REDIS_URL is set, otherwise Postgres does.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *Services, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DB.ConnMaxLifetimeSec) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DB.ConnMaxIdleSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, db.Close)
	if err := db.InitSchema(ctx); err != nil {
		return nil, err
	}
	logger.Debug("postgres connected")

	adapters := Adapters{
		Documents: postgres.NewDocumentStore(db),
		Chunks:    postgres.NewChunkStore(db),
		Parsers:   parsers.DefaultRegistry(),
	}

	backend := "postgres"
	if cfg.RedisURL != "" {
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, client.Close)
		queue, err := newRedisQueue(ctx, client)
		if err != nil {
			return nil, err
		}
		queue.SetClaimTimeout(2 * cfg.LockTTL())
		adapters.TaskQueue = queue
		adapters.Lock = redisadapter.NewLock(client)
		backend = "redis"
	} else {
		adapters.TaskQueue = postgresqueue.NewQueue(db)
		adapters.Lock = postgres.NewAdvisoryLock(db)
	}
	logger.Debug("queue backend selected", "backend", backend)

	embedding, err := ai.NewEmbeddingService(ai.Config{
		Provider:          ai.Provider(cfg.Embedding.Provider),
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.EmbeddingTimeout(),
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	closers = append(closers, embedding.Close)
	adapters.Embedding = embedding

	tok, err := tokenizer.NewForModel(cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	adapters.Tokenizer = tok

	s, err = NewServices(cfg, adapters, logger)
	if err != nil {
		return nil, err
	}
	s.Backend = backend
	s.closers = closers
	return s, nil
}

func newRedisQueue(ctx context.Context, client *redis.Client) (*redisqueue.Queue, error) {
	hostname, _ := os.Hostname()
	return redisqueue.NewQueue(ctx, client, fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()))
}

// Ping checks every backend the services depend on. Failures wrap
// domain.ErrServiceUnavailable.
func (s *Services) Ping(ctx context.Context) error {
	var errs []error
	if s.TaskQueue != nil {
		if err := s.TaskQueue.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: task queue: %w", domain.ErrServiceUnavailable, err))
		}
	}
	if s.Lock != nil {
		if err := s.Lock.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: lock: %w", domain.ErrServiceUnavailable, err))
		}
	}
	if s.Embedding != nil {
		if err := s.Embedding.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: embedding: %w", domain.ErrServiceUnavailable, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections in reverse order of creation
func (s *Services) Close() error {
	err := closeAll(s.closers)
	s.closers = nil
	return err
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
