package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// spawnWorkerPool starts concurrency goroutines on g
func (w *Worker) spawnWorkerPool(ctx context.Context, g *errgroup.Group) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.workerLoop(ctx, i)
			return nil
		})
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.jobsChan:
			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
			)
			w.handle(ctx, workerName, msg)
		}
	}
}

// handle executes one job and settles its delivery
func (w *Worker) handle(ctx context.Context, workerName string, msg *jobMessage) {
	result := w.executor.Execute(ctx, msg.JobID)

	logger := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.JobID),
		slog.String("disposition", result.Disposition.String()),
	)

	if result.Disposition == DispositionRetry {
		w.pauseBeforeRetry(ctx)
		if err := msg.Delivery.Nack(true); err != nil {
			logger.Error("Failed to NACK message", slog.Any("error", err))
			return
		}
		logger.Warn("Message requeued", slog.String("error", result.Error))
		return
	}

	if err := msg.Delivery.Ack(); err != nil {
		logger.Error("Failed to ACK message", slog.Any("error", err))
		return
	}
	logger.Debug("Message acknowledged",
		slog.String("status", string(result.Status)),
	)
}

// pauseBeforeRetry waits retryDelay, or until ctx ends
func (w *Worker) pauseBeforeRetry(ctx context.Context) {
	if w.retryDelay <= 0 {
		return
	}

	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
