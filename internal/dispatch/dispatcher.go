package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/metrics"
	"github.com/cuongbtq/bot-runner/internal/queue"
)

// ErrDispatchUnavailable means the broker did not accept the job. The job is
// left PENDING and the caller may retry.
var ErrDispatchUnavailable = errors.New("dispatch unavailable")

// JobStore is the subset of the job store the dispatcher writes
type JobStore interface {
	MarkQueued(ctx context.Context, jobID string, at time.Time) error
	RevertQueued(ctx context.Context, jobID string) error
}

// Dispatcher hands job references to the work queue
type Dispatcher struct {
	store     JobStore
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time

	publishTimeout time.Duration
}

// New creates a Dispatcher
func New(store JobStore, publisher queue.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithPublishTimeout bounds how long Enqueue waits for the broker
func (d *Dispatcher) WithPublishTimeout(timeout time.Duration) *Dispatcher {
	d.publishTimeout = timeout
	return d
}

// Enqueue marks the job QUEUED and publishes its id. QUEUED is committed first
// so a consumer that receives the message immediately always finds it.
func (d *Dispatcher) Enqueue(ctx context.Context, jobID string) error {
	if err := d.store.MarkQueued(ctx, jobID, d.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark job queued: %w", err)
	}

	if err := d.publish(ctx, jobID); err != nil {
		metrics.DispatchFailuresTotal.Inc()
		d.logger.Error("Failed to publish job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)

		// revert with a fresh context; ctx may be what just expired
		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if revertErr := d.store.RevertQueued(revertCtx, jobID); revertErr != nil {
			d.logger.Error("Failed to revert job to PENDING",
				slog.String("job_id", jobID),
				slog.Any("error", revertErr),
			)
			return fmt.Errorf("%w: %v (revert failed: %v)", ErrDispatchUnavailable, err, revertErr)
		}

		return fmt.Errorf("%w: %v", ErrDispatchUnavailable, err)
	}

	metrics.JobsDispatchedTotal.Inc()
	d.logger.Info("Job dispatched",
		slog.String("job_id", jobID),
	)
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, jobID string) error {
	if d.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.publishTimeout)
		defer cancel()
	}
	return d.publisher.Publish(ctx, jobID)
}
