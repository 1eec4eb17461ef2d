package dto

import "github.com/cuongbtq/bot-runner/internal/domain"

// CreateJobRequest names the bot by id or by name, never both
type CreateJobRequest struct {
	BotID      string             `json:"bot_id"`
	BotName    string             `json:"bot_name"`
	Parameters map[string]any     `json:"parameters"`
	InputFiles []domain.InputFile `json:"input_files"`
}

type ListJobsRequest struct {
	BotID    string `form:"bot_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type ListJobLogsRequest struct {
	AfterID int64 `form:"after_id"`
	Limit   int   `form:"limit"`
}

type ListJobLogsResponse struct {
	Logs        []domain.JobLog `json:"logs"`
	NextAfterID int64           `json:"next_after_id"`
}

// DispatchFailedResponse is returned with 503 when the job was stored but the
// broker did not accept it
type DispatchFailedResponse struct {
	Error string      `json:"error"`
	Job   *domain.Job `json:"job"`
}
