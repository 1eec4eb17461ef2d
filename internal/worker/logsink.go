package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/metrics"
	"github.com/cuongbtq/bot-runner/internal/scripts"
)

// LogStore appends job log lines
type LogStore interface {
	AppendLog(ctx context.Context, entry *domain.JobLog) error
}

// jobLogger writes job logs, each in its own transaction, and mirrors them to
// the process logger. A failed write is reported and dropped; it never reaches
// the caller.
type jobLogger struct {
	store  LogStore
	logger *slog.Logger
	now    func() time.Time
}

func newJobLogger(store LogStore, logger *slog.Logger, now func() time.Time) *jobLogger {
	return &jobLogger{store: store, logger: logger, now: now}
}

func (l *jobLogger) write(ctx context.Context, jobID, level, message, source string) {
	defer func() {
		if p := recover(); p != nil {
			metrics.JobLogWriteFailuresTotal.Inc()
			l.logger.Error("Job log write panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", p),
			)
		}
	}()

	if source == "" {
		source = domain.LogSourceWorker
	}

	l.logger.Log(ctx, slogLevel(level), message,
		slog.String("job_id", jobID),
		slog.String("job_log_level", level),
		slog.String("source", source),
	)

	entry := &domain.JobLog{
		JobID:     jobID,
		Timestamp: l.now(),
		LogLevel:  level,
		Message:   message,
		Source:    source,
	}
	if err := l.store.AppendLog(ctx, entry); err != nil {
		metrics.JobLogWriteFailuresTotal.Inc()
		l.logger.Warn("Failed to persist job log",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

// sink adapts write to the script-facing callback
func (l *jobLogger) sink(ctx context.Context) scripts.LogSink {
	return func(jobID, level, message, source string) {
		l.write(ctx, jobID, level, message, source)
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case domain.LogLevelDebug:
		return slog.LevelDebug
	case domain.LogLevelWarn, "WARNING":
		return slog.LevelWarn
	case domain.LogLevelError, "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
