package domain

// JobStatus is the lifecycle state of a job
type JobStatus string

// Job status constants
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSuccess   JobStatus = "SUCCESS"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusRunning,
		JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
// CANCELLED is reachable from every non-terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStatusCancelled {
		return true
	}

	switch s {
	case JobStatusPending:
		return next == JobStatusQueued
	case JobStatusQueued:
		// bot lookup failures finish a job without it ever running
		return next == JobStatusRunning || next == JobStatusFailed || next == JobStatusPending
	case JobStatusRunning:
		return next == JobStatusSuccess || next == JobStatusFailed
	default:
		return false
	}
}

// ErrorKind classifies why a job failed
type ErrorKind string

const (
	ErrorKindBotNotFound             ErrorKind = "BotNotFound"
	ErrorKindBotDisabled             ErrorKind = "BotDisabled"
	ErrorKindInvalidScriptIdentifier ErrorKind = "InvalidScriptIdentifier"
	ErrorKindModuleResolution        ErrorKind = "ModuleResolutionError"
	ErrorKindFunctionResolution      ErrorKind = "FunctionResolutionError"
	ErrorKindExecution               ErrorKind = "ExecutionError"
)

// Log levels written to job_logs. The column is free-form; these are the
// levels the worker itself emits.
const (
	LogLevelDebug      = "DEBUG"
	LogLevelInfo       = "INFO"
	LogLevelWarn       = "WARN"
	LogLevelError      = "ERROR"
	LogLevelScriptInfo = "SCRIPT_INFO"
)

// LogSourceWorker tags log lines written by the executor itself
const LogSourceWorker = "worker"

// DefaultResultSummary is stored when a script returns nothing
const DefaultResultSummary = "Execution completed without explicit result summary."
