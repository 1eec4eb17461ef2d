package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/bot-runner/internal/queue"
)

// ErrDeliveriesClosed is returned when the broker stops delivering while the
// worker is still meant to run
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// startMessageDispatcher decodes deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan queue.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("Delivery channel closed")
				return ErrDeliveriesClosed
			}

			msg, err := queue.Decode(delivery.Body())
			if err != nil {
				w.logger.Error("Discarding malformed job message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body())),
				)
				// never processable, so it is not requeued
				if nackErr := delivery.Nack(false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			jobMsg := &jobMessage{
				JobID:    msg.JobID,
				Delivery: delivery,
			}

			select {
			case w.jobsChan <- jobMsg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("job_id", msg.JobID),
						slog.Any("error", nackErr),
					)
				}
				return nil
			}
		}
	}
}
