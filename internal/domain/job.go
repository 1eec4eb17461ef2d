package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Job is one request to execute a bot's script
type Job struct {
	ID                string        `db:"id" json:"id"`
	BotConfigID       string        `db:"bot_config_id" json:"bot_config_id"`
	Status            JobStatus     `db:"status" json:"status"`
	ParametersUsed    JSONMap       `db:"parameters_used" json:"parameters_used"`
	InputFiles        InputFiles    `db:"input_files" json:"input_files"`
	EnqueuedAt        *time.Time    `db:"enqueued_at" json:"enqueued_at,omitempty"`
	StartedAt         *time.Time    `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	ResultSummary     *string       `db:"result_summary" json:"result_summary,omitempty"`
	ErrorMessage      *string       `db:"error_message" json:"error_message,omitempty"`
	ErrorDetails      *ErrorDetails `db:"error_details" json:"error_details,omitempty"`
	ProgressPercent   *int          `db:"progress_percent" json:"progress_percent,omitempty"`
	ProgressMessage   *string       `db:"progress_message" json:"progress_message,omitempty"`
	RetryCount        int           `db:"retry_count" json:"retry_count"`
	TriggeredByUserID *string       `db:"triggered_by_user_id" json:"triggered_by_user_id,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// JobLog is one append-only log line attributed to a job
type JobLog struct {
	ID        int64     `db:"id" json:"id"`
	JobID     string    `db:"job_id" json:"job_id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	LogLevel  string    `db:"log_level" json:"log_level"`
	Message   string    `db:"message" json:"message"`
	Source    string    `db:"source" json:"source"`
}

// InputFile describes an uploaded file handed to a script
type InputFile struct {
	OriginalFilename string `json:"original_filename"`
	StoragePath      string `json:"storage_path"`
	Mimetype         string `json:"mimetype"`
}

// ErrorDetails is the structured failure record of a FAILED job
type ErrorDetails struct {
	Kind       ErrorKind `json:"kind"`
	Trace      string    `json:"trace,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
}

// Outcome is the terminal result the executor writes for a running job
type Outcome struct {
	Status        JobStatus
	ResultSummary string
	ErrorMessage  string
	ErrorDetails  *ErrorDetails
	CompletedAt   time.Time
}

// JSONMap is a JSONB object column
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	return scanJSON(src, m)
}

// InputFiles is an ordered JSONB list of input files
type InputFiles []InputFile

// Value implements driver.Valuer
func (f InputFiles) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner
func (f *InputFiles) Scan(src any) error {
	return scanJSON(src, f)
}

// Value implements driver.Valuer
func (d *ErrorDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *ErrorDetails) Scan(src any) error {
	return scanJSON(src, d)
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
