package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// JobStorage persists jobs and their logs. Every write runs in its own
// short transaction; no lock outlives a single call.
type JobStorage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *sqlx.DB, logger *slog.Logger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job record
func (s *JobStorage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, bot_config_id, status, parameters_used, input_files,
			retry_count, triggered_by_user_id, created_at, updated_at
		) VALUES (
			:id, :bot_config_id, :status, :parameters_used, :input_files,
			:retry_count, :triggered_by_user_id, :created_at, :updated_at
		)
	`

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, query, job)
		return err
	})
	if err != nil {
		if isPQCode(err, pgForeignKeyViolation) {
			return domain.ErrBotNotFound
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by its ID
func (s *JobStorage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	BotConfigID string
	Status      domain.JobStatus
	PageSize    int
	Cursor      *JobCursor
}

// JobCursor is the keyset position of the last job on a page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell
// whether another page exists
func (s *JobStorage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.BotConfigID != "" {
		query += fmt.Sprintf(" AND bot_config_id = $%d", argIdx)
		args = append(args, filter.BotConfigID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// MarkQueued moves a PENDING job to QUEUED and stamps enqueued_at
func (s *JobStorage) MarkQueued(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1, enqueued_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	return s.conditionalUpdate(ctx, jobID, domain.ErrJobNotPending, query,
		domain.JobStatusQueued, at, jobID, domain.JobStatusPending)
}

// RevertQueued puts a QUEUED job back to PENDING after a failed publish
func (s *JobStorage) RevertQueued(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1, enqueued_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	return s.conditionalUpdate(ctx, jobID, domain.ErrStatusConflict, query,
		domain.JobStatusPending, jobID, domain.JobStatusQueued)
}

// ClaimJob moves a QUEUED job to RUNNING. It returns ErrStatusConflict when the
// job is no longer QUEUED, which is how redelivered messages are detected.
func (s *JobStorage) ClaimJob(ctx context.Context, jobID string, startedAt time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	err := s.conditionalUpdate(ctx, jobID, domain.ErrStatusConflict, query,
		domain.JobStatusRunning, startedAt, jobID, domain.JobStatusQueued)
	if err != nil {
		return err
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
	)
	return nil
}

// FailQueuedJob finishes a job that never started
func (s *JobStorage) FailQueuedJob(ctx context.Context, jobID string, outcome domain.Outcome) error {
	return s.finish(ctx, jobID, domain.JobStatusQueued, outcome)
}

// CompleteJob writes the terminal state of a RUNNING job. A job cancelled
// while running yields ErrStatusConflict and is left untouched.
func (s *JobStorage) CompleteJob(ctx context.Context, jobID string, outcome domain.Outcome) error {
	return s.finish(ctx, jobID, domain.JobStatusRunning, outcome)
}

func (s *JobStorage) finish(ctx context.Context, jobID string, from domain.JobStatus, outcome domain.Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("finish job %s: %s is not a terminal status", jobID, outcome.Status)
	}

	// completed_at never precedes started_at even with clock skew between workers
	query := `
		UPDATE jobs
		SET status = $1,
			result_summary = $2,
			error_message = $3,
			error_details = $4,
			completed_at = GREATEST($5::timestamptz, COALESCE(started_at, $5::timestamptz)),
			updated_at = $5
		WHERE id = $6 AND status = $7
	`

	err := s.conditionalUpdate(ctx, jobID, domain.ErrStatusConflict, query,
		outcome.Status,
		nullString(outcome.ResultSummary),
		nullString(outcome.ErrorMessage),
		outcome.ErrorDetails,
		outcome.CompletedAt,
		jobID,
		from,
	)
	if err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(outcome.Status)),
	)
	return nil
}

// CancelJob marks a non-terminal job CANCELLED. It does not reach a running
// script; the executor only observes it when it tries to finalize.
func (s *JobStorage) CancelJob(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1,
			completed_at = GREATEST($2::timestamptz, COALESCE(started_at, $2::timestamptz)),
			updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`

	active := pq.Array([]string{
		string(domain.JobStatusPending),
		string(domain.JobStatusQueued),
		string(domain.JobStatusRunning),
	})

	return s.conditionalUpdate(ctx, jobID, domain.ErrStatusConflict, query,
		domain.JobStatusCancelled, at, jobID, active)
}

// UpdateProgress records script-reported progress on a RUNNING job
func (s *JobStorage) UpdateProgress(ctx context.Context, jobID string, percent int, message string) error {
	query := `
		UPDATE jobs
		SET progress_percent = $1, progress_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	return s.conditionalUpdate(ctx, jobID, domain.ErrStatusConflict, query,
		percent, nullString(message), jobID, domain.JobStatusRunning)
}

// DeleteJob removes a terminal job; its logs go with it via ON DELETE CASCADE
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	query := `DELETE FROM jobs WHERE id = $1 AND status = ANY($2)`

	terminal := pq.Array([]string{
		string(domain.JobStatusSuccess),
		string(domain.JobStatusFailed),
		string(domain.JobStatusCancelled),
	})

	return s.conditionalUpdate(ctx, jobID, domain.ErrJobNotTerminal, query, jobID, terminal)
}

// AppendLog inserts one log line and fills in its id
func (s *JobStorage) AppendLog(ctx context.Context, entry *domain.JobLog) error {
	query := `
		INSERT INTO job_logs (job_id, timestamp, log_level, message, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, query,
			entry.JobID, entry.Timestamp, entry.LogLevel, entry.Message, entry.Source,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("failed to append job log: %w", err)
		}
		return nil
	})
}

// ListLogs returns a job's logs in write order, starting after afterID
func (s *JobStorage) ListLogs(ctx context.Context, jobID string, afterID int64, limit int) ([]domain.JobLog, error) {
	query := `
		SELECT id, job_id, timestamp, log_level, message, COALESCE(source, '') AS source
		FROM job_logs
		WHERE job_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`

	logs := []domain.JobLog{}
	if err := s.db.SelectContext(ctx, &logs, query, jobID, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	return logs, nil
}

// conditionalUpdate runs a guarded UPDATE/DELETE in its own transaction. When no
// row matched it tells a missing job apart from a status mismatch.
func (s *JobStorage) conditionalUpdate(ctx context.Context, jobID string, mismatch error, query string, args ...any) error {
	var affected int64

	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID); err != nil {
		return fmt.Errorf("failed to check job %s: %w", jobID, err)
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return mismatch
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
