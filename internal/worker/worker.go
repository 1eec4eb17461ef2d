package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/bot-runner/internal/queue"
	"golang.org/x/sync/errgroup"
)

// JobExecutor runs one job reference to completion
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) Result
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Executor    JobExecutor
	Consumer    queue.Consumer
	WorkerID    string
	Concurrency int
	// RetryDelay is waited out before a retryable delivery is requeued
	RetryDelay time.Duration
}

// Worker consumes job messages and runs them on a fixed pool of goroutines
type Worker struct {
	logger      *slog.Logger
	executor    JobExecutor
	consumer    queue.Consumer
	workerID    string
	concurrency int
	retryDelay  time.Duration

	jobsChan chan *jobMessage
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// jobMessage is a decoded delivery waiting for a pool goroutine
type jobMessage struct {
	JobID    string
	Delivery queue.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		executor:    cfg.Executor,
		consumer:    cfg.Consumer,
		workerID:    cfg.WorkerID,
		concurrency: concurrency,
		retryDelay:  cfg.RetryDelay,
		jobsChan:    make(chan *jobMessage),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start consumes and processes jobs until ctx is canceled, Stop is called, or
// the delivery stream breaks. Jobs already running are finished first.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %s already started", w.workerID)
	}
	defer close(w.done)

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	deliveries, err := w.consumer.Consume(ctx, w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.startMessageDispatcher(gctx, deliveries)
	})
	w.spawnWorkerPool(gctx, g)

	err = g.Wait()
	w.logger.Info("Worker stopped processing",
		slog.String("worker_id", w.workerID),
	)
	return err
}

// Stop gracefully stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.done
	}
	w.logger.Info("Worker stopped")
}
