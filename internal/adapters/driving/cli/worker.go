package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/smartchunk/internal/worker"
)

var (
	workerConcurrency int
	workerTimeout     int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued documents",
	Long: `Consumes process and retry tasks from the queue until interrupted.
The retry scheduler runs alongside unless RETRY_SCHEDULER_ENABLED=false.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "task processors (defaults to WORKER_CONCURRENCY)")
	workerCmd.Flags().IntVar(&workerTimeout, "dequeue-timeout", 0, "seconds to block on an empty queue")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := app.Logger

	if err := app.Embedding.HealthCheck(ctx); err != nil {
		logger.Warn("embedding provider health check failed", "error", err)
	}

	cfg := worker.WorkerConfig{
		TaskQueue:      app.TaskQueue,
		Ingestion:      app.IngestionService,
		Scheduler:      app.RetryScheduler,
		Logger:         logger,
		Concurrency:    app.Config.Worker.Concurrency,
		DequeueTimeout: app.Config.Worker.DequeueTimeout,
	}
	if workerConcurrency > 0 {
		cfg.Concurrency = workerConcurrency
	}
	if workerTimeout > 0 {
		cfg.DequeueTimeout = workerTimeout
	}

	w := worker.NewWorker(cfg)
	if err := w.Start(ctx); err != nil {
		return err
	}
	health := w.Health(ctx)
	if !health.QueueHealth {
		logger.Warn("task queue unhealthy", "error", health.Error)
	}
	logger.Info("worker running", "backend", app.Backend, "concurrency", cfg.Concurrency)

	<-ctx.Done()
	logger.Info("shutting down worker")
	w.Stop()
	return nil
}
