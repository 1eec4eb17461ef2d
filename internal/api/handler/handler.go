package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/bot-runner/internal/dispatch"
	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDHeader carries the caller's identity; it is trusted as-is
const UserIDHeader = "X-User-ID"

// JobStore is the job persistence the API uses
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	CancelJob(ctx context.Context, jobID string, at time.Time) error
	DeleteJob(ctx context.Context, jobID string) error
	ListLogs(ctx context.Context, jobID string, afterID int64, limit int) ([]domain.JobLog, error)
}

// BotStore is the bot configuration persistence the API uses
type BotStore interface {
	GetBotByID(ctx context.Context, botID string) (*domain.BotConfiguration, error)
	GetBotByName(ctx context.Context, name string) (*domain.BotConfiguration, error)
	ListBots(ctx context.Context, filter storage.BotFilter) ([]domain.BotConfiguration, error)
	CreateBot(ctx context.Context, bot *domain.BotConfiguration) error
	UpdateBot(ctx context.Context, bot *domain.BotConfiguration) error
	DeleteBot(ctx context.Context, botID string) error
}

// Dispatcher enqueues PENDING jobs
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger          *slog.Logger
	ServiceName     string
	Jobs            JobStore
	Bots            BotStore
	Dispatcher      Dispatcher
	DB              HealthChecker
	LogPollInterval time.Duration
}

// statusFor maps domain and dispatch errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrBotNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateBotName),
		errors.Is(err, domain.ErrBotInUse),
		errors.Is(err, domain.ErrJobNotPending),
		errors.Is(err, domain.ErrJobNotTerminal),
		errors.Is(err, domain.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrDispatchUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Unexpected errors are logged and
// replaced by fallback so internals do not leak.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		msg = fallback
	}
	c.JSON(status, gin.H{"error": msg})
}

// uuidParam reads a path parameter that must be a UUID, writing 400 if not
func uuidParam(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": name + " must be a valid UUID",
		})
		return "", false
	}
	return id, true
}

func userID(c *gin.Context) *string {
	if id := c.GetHeader(UserIDHeader); id != "" {
		return &id
	}
	return nil
}
