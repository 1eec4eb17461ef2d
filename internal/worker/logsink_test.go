package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/metrics"
	"github.com/cuongbtq/bot-runner/shared/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingLogStore struct{}

func (panickingLogStore) AppendLog(context.Context, *domain.JobLog) error {
	panic("driver bug")
}

func TestJobLogger_Write(t *testing.T) {
	store := newMemStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jl := newJobLogger(store, logger.NewNop().Logger, func() time.Time { return at })

	jl.write(context.Background(), "job-1", domain.LogLevelInfo, "hello", "")
	jl.sink(context.Background())("job-1", domain.LogLevelScriptInfo, "from script", "invoice_bot")

	logs := store.jobLogs("job-1")
	require.Len(t, logs, 2)
	assert.Equal(t, domain.LogSourceWorker, logs[0].Source)
	assert.Equal(t, at, logs[0].Timestamp)
	assert.Equal(t, "invoice_bot", logs[1].Source)
	assert.Equal(t, domain.LogLevelScriptInfo, logs[1].LogLevel)
}

func TestJobLogger_SwallowsFailures(t *testing.T) {
	before := testutil.ToFloat64(metrics.JobLogWriteFailuresTotal)

	store := newMemStore()
	store.appendErr = errors.New("deadlock detected")
	jl := newJobLogger(store, logger.NewNop().Logger, time.Now)
	assert.NotPanics(t, func() {
		jl.write(context.Background(), "job-1", domain.LogLevelError, "lost", "")
	})

	jl = newJobLogger(panickingLogStore{}, logger.NewNop().Logger, time.Now)
	assert.NotPanics(t, func() {
		jl.write(context.Background(), "job-1", domain.LogLevelError, "lost", "")
	})

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.JobLogWriteFailuresTotal))
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel(domain.LogLevelDebug))
	assert.Equal(t, slog.LevelInfo, slogLevel(domain.LogLevelScriptInfo))
	assert.Equal(t, slog.LevelWarn, slogLevel(domain.LogLevelWarn))
	assert.Equal(t, slog.LevelError, slogLevel(domain.LogLevelError))
}
