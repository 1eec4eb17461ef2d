package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/bot-runner/internal/api/dto"
	"github.com/cuongbtq/bot-runner/internal/dispatch"
	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	jobs         JobStore
	bots         BotStore
	dispatcher   Dispatcher
	pollInterval time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	poll := deps.LogPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &JobHandler{
		logger:       deps.Logger,
		jobs:         deps.Jobs,
		bots:         deps.Bots,
		dispatcher:   deps.Dispatcher,
		pollInterval: poll,
	}
}

// CreateJob handles POST /api/v1/jobs
// Snapshots the merged parameters into a PENDING job and dispatches it
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if (req.BotID == "") == (req.BotName == "") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "exactly one of bot_id or bot_name is required",
		})
		return
	}

	ctx := c.Request.Context()

	var (
		bot *domain.BotConfiguration
		err error
	)
	if req.BotID != "" {
		if _, perr := uuid.Parse(req.BotID); perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "bot_id must be a valid UUID",
			})
			return
		}
		bot, err = h.bots.GetBotByID(ctx, req.BotID)
	} else {
		bot, err = h.bots.GetBotByName(ctx, req.BotName)
	}
	if err != nil {
		respondError(c, h.logger, err, "Failed to load bot configuration")
		return
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:                uuid.NewString(),
		BotConfigID:       bot.ID,
		Status:            domain.JobStatusPending,
		ParametersUsed:    bot.MergeParameters(req.Parameters),
		InputFiles:        domain.InputFiles(req.InputFiles),
		TriggeredByUserID: userID(c),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if job.InputFiles == nil {
		job.InputFiles = domain.InputFiles{}
	}

	if err := h.jobs.CreateJob(ctx, job); err != nil {
		respondError(c, h.logger, err, "Failed to create job")
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("bot_id", bot.ID),
		slog.String("bot_name", bot.Name),
	)

	if err := h.dispatcher.Enqueue(ctx, job.ID); err != nil {
		if errors.Is(err, dispatch.ErrDispatchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, dto.DispatchFailedResponse{
				Error: "job stored but could not be queued; retry with POST /api/v1/jobs/" + job.ID + "/enqueue",
				Job:   job,
			})
			return
		}
		respondError(c, h.logger, err, "Failed to enqueue job")
		return
	}

	c.JSON(http.StatusCreated, h.reload(c, job, domain.JobStatusQueued))
}

// EnqueueJob handles POST /api/v1/jobs/:job_id/enqueue
// Retries dispatch of a job left PENDING
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	if err := h.dispatcher.Enqueue(c.Request.Context(), jobID); err != nil {
		respondError(c, h.logger, err, "Failed to enqueue job")
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := domain.JobStatus(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		BotConfigID: req.BotID,
		Status:      status,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	if jobs == nil {
		jobs = []domain.Job{}
	}
	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Marks the job CANCELLED. A script already running is not interrupted.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	if err := h.jobs.CancelJob(c.Request.Context(), jobID, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "job has already finished",
			})
			return
		}
		respondError(c, h.logger, err, "Failed to cancel job")
		return
	}

	h.logger.Info("Job cancelled", slog.String("job_id", jobID))

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Deletes a finished job and its logs
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(c.Request.Context(), jobID); err != nil {
		respondError(c, h.logger, err, "Failed to delete job")
		return
	}

	h.logger.Info("Job deleted", slog.String("job_id", jobID))
	c.Status(http.StatusNoContent)
}

// reload returns the stored job, or the in-memory copy with the expected
// status if the read fails
func (h *JobHandler) reload(c *gin.Context, job *domain.Job, expected domain.JobStatus) *domain.Job {
	fresh, err := h.jobs.GetJobByID(c.Request.Context(), job.ID)
	if err != nil {
		h.logger.Warn("Failed to reload job after dispatch",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		job.Status = expected
		return job
	}
	return fresh
}
