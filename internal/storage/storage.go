package storage

import (
	"errors"

	"github.com/lib/pq"
)

// postgres error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

const jobColumns = `
	id, bot_config_id, status, parameters_used, input_files,
	enqueued_at, started_at, completed_at, result_summary,
	error_message, error_details, progress_percent, progress_message,
	retry_count, triggered_by_user_id, created_at, updated_at`

const botColumns = `
	id, name, description, script_identifier, parameter_schema,
	default_parameters, is_enabled, created_by, created_at, updated_at`
