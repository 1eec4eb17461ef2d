package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/bot-runner/internal/api/dto"
	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	streamBatchSize = 500
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ListJobLogs handles GET /api/v1/jobs/:job_id/logs
// Returns log lines in insertion order after the given id
func (h *JobHandler) ListJobLogs(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	var req dto.ListJobLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.AfterID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultLogLimit
	}
	if req.Limit > maxLogLimit {
		req.Limit = maxLogLimit
	}

	ctx := c.Request.Context()
	if _, err := h.jobs.GetJobByID(ctx, jobID); err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	logs, err := h.jobs.ListLogs(ctx, jobID, req.AfterID, req.Limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list job logs")
		return
	}

	next := req.AfterID
	if len(logs) > 0 {
		next = logs[len(logs)-1].ID
	}
	if logs == nil {
		logs = []domain.JobLog{}
	}

	c.JSON(http.StatusOK, dto.ListJobLogsResponse{
		Logs:        logs,
		NextAfterID: next,
	})
}

// StreamJobLogs handles GET /api/v1/jobs/:job_id/logs/stream
// Tails the job's logs over a websocket. Each frame is one JobLog as JSON.
// The server closes the stream once the job is terminal and drained.
func (h *JobHandler) StreamJobLogs(c *gin.Context) {
	jobID, ok := uuidParam(c, "job_id")
	if !ok {
		return
	}

	if _, err := h.jobs.GetJobByID(c.Request.Context(), jobID); err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	var afterID int64
	if v := c.Query("after_id"); v != "" {
		var req dto.ListJobLogsRequest
		if err := c.ShouldBindQuery(&req); err != nil || req.AfterID < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid after_id",
			})
			return
		}
		afterID = req.AfterID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	// the client never sends anything; reading detects its close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("Log stream opened", slog.String("job_id", jobID))
	reason := h.tail(ctx, conn, jobID, afterID)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
	h.logger.Debug("Log stream closed",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)
}

// tail polls for new log lines until the job is terminal with nothing left
// to send, the client goes away, or a read fails. It returns the close reason.
// Lines can land just after the terminal commit, so the stream only ends after
// a second empty poll of a terminal job.
func (h *JobHandler) tail(ctx context.Context, conn *websocket.Conn, jobID string, afterID int64) string {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	drained := false
	for {
		job, err := h.jobs.GetJobByID(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "client gone"
			}
			return "job unavailable"
		}

		logs, err := h.jobs.ListLogs(ctx, jobID, afterID, streamBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return "client gone"
			}
			h.logger.Error("Failed to read job logs for stream",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
			return "log read failed"
		}

		for _, entry := range logs {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				return "write failed"
			}
			afterID = entry.ID
		}

		if len(logs) == 0 && job.Status.IsTerminal() {
			if drained {
				return "job " + string(job.Status)
			}
			drained = true
		} else {
			drained = false
		}

		if len(logs) < streamBatchSize {
			select {
			case <-ctx.Done():
				return "client gone"
			case <-ticker.C:
			}
		}
	}
}
