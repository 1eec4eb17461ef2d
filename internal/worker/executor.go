package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/metrics"
	"github.com/cuongbtq/bot-runner/internal/scripts"
)

// JobStore is what the executor reads and writes. Each call is its own
// transaction.
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID string, startedAt time.Time) error
	FailQueuedJob(ctx context.Context, jobID string, outcome domain.Outcome) error
	CompleteJob(ctx context.Context, jobID string, outcome domain.Outcome) error
	UpdateProgress(ctx context.Context, jobID string, percent int, message string) error
	LogStore
}

// BotRegistry is the read-only bot lookup
type BotRegistry interface {
	GetBotByID(ctx context.Context, botID string) (*domain.BotConfiguration, error)
}

// ScriptResolver resolves script identifiers
type ScriptResolver interface {
	Resolve(identifier string) scripts.Resolution
}

// Disposition tells the consumer loop what to do with the delivery
type Disposition int

const (
	// DispositionDone acknowledges the message; the job reached a terminal state
	DispositionDone Disposition = iota
	// DispositionDiscard acknowledges a message that must not be processed
	DispositionDiscard
	// DispositionRetry requeues the message; the store could not be reached
	// before any transition was made
	DispositionRetry
)

func (d Disposition) String() string {
	switch d {
	case DispositionDone:
		return "done"
	case DispositionDiscard:
		return "discard"
	case DispositionRetry:
		return "retry"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Result describes what happened to one delivery. Execute always returns one;
// job failures never surface as Go errors or panics.
type Result struct {
	JobID       string
	Status      domain.JobStatus
	Result      string
	Error       string
	Kind        domain.ErrorKind
	Disposition Disposition
}

// Executor drives a job from QUEUED to a terminal state
type Executor struct {
	jobs    JobStore
	bots    BotRegistry
	scripts ScriptResolver
	logger  *slog.Logger
	joblog  *jobLogger
	now     func() time.Time
}

// NewExecutor creates an Executor
func NewExecutor(jobs JobStore, bots BotRegistry, resolver ScriptResolver, logger *slog.Logger) *Executor {
	now := func() time.Time { return time.Now().UTC() }
	return &Executor{
		jobs:    jobs,
		bots:    bots,
		scripts: resolver,
		logger:  logger,
		joblog:  newJobLogger(jobs, logger, now),
		now:     now,
	}
}

// Execute processes one delivered job reference
func (e *Executor) Execute(ctx context.Context, jobID string) Result {
	logger := e.logger.With(slog.String("job_id", jobID))
	res := Result{JobID: jobID}

	job, err := e.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// nothing to record the failure on
			logger.Error("Job not found, discarding message")
			res.Error = err.Error()
			res.Disposition = DispositionDiscard
			return res
		}
		logger.Error("Failed to load job", slog.Any("error", err))
		res.Error = err.Error()
		res.Disposition = DispositionRetry
		return res
	}
	res.Status = job.Status

	if job.Status != domain.JobStatusQueued {
		return e.skipDuplicate(ctx, job.ID, job.Status)
	}

	bot, err := e.bots.GetBotByID(ctx, job.BotConfigID)
	switch {
	case errors.Is(err, domain.ErrBotNotFound):
		msg := fmt.Sprintf("BotConfiguration with ID %s not found for Job %s.", job.BotConfigID, job.ID)
		return e.failQueued(ctx, job, domain.ErrorKindBotNotFound, msg, errorTrace(err))
	case err != nil:
		logger.Error("Failed to load bot configuration", slog.Any("error", err))
		res.Error = err.Error()
		res.Disposition = DispositionRetry
		return res
	case !bot.IsEnabled:
		msg := fmt.Sprintf("Bot '%s' (ID: %s) is disabled. Job %s cannot run.", bot.Name, bot.ID, job.ID)
		return e.failQueued(ctx, job, domain.ErrorKindBotDisabled, msg, msg)
	}

	// committed before the script starts so observers see RUNNING promptly
	startedAt := e.now()
	if err := e.jobs.ClaimJob(ctx, job.ID, startedAt); err != nil {
		switch {
		case errors.Is(err, domain.ErrStatusConflict):
			return e.skipDuplicate(ctx, job.ID, e.currentStatus(ctx, job.ID))
		case errors.Is(err, domain.ErrJobNotFound):
			logger.Error("Job deleted before it could be claimed")
			res.Error = err.Error()
			res.Disposition = DispositionDiscard
			return res
		default:
			logger.Error("Failed to claim job", slog.Any("error", err))
			res.Error = err.Error()
			res.Disposition = DispositionRetry
			return res
		}
	}

	// from here on every write must land even if the worker is shutting down
	ctx = context.WithoutCancel(ctx)

	e.joblog.write(ctx, job.ID, domain.LogLevelInfo,
		fmt.Sprintf("Job %s status: RUNNING. Bot: %s.", job.ID, bot.Name), domain.LogSourceWorker)

	outcome := e.run(ctx, job, bot)
	return e.finalize(ctx, job.ID, startedAt, outcome)
}

// run resolves and invokes the script, classifying any failure
func (e *Executor) run(ctx context.Context, job *domain.Job, bot *domain.BotConfiguration) domain.Outcome {
	identifier := bot.ScriptIdentifier

	e.joblog.write(ctx, job.ID, domain.LogLevelInfo,
		fmt.Sprintf("Attempting to run script: %s for Job %s.", identifier, job.ID), domain.LogSourceWorker)

	module, function, ok := scripts.ParseIdentifier(identifier)
	if !ok {
		msg := fmt.Sprintf("Invalid script_identifier format: '%s'. Expected 'module_name.function_name'.", identifier)
		return failed(domain.ErrorKindInvalidScriptIdentifier, msg, msg, identifier)
	}

	e.joblog.write(ctx, job.ID, domain.LogLevelDebug,
		fmt.Sprintf("Resolving module: %s, function: %s", module, function), domain.LogSourceWorker)

	resolution := e.scripts.Resolve(identifier)
	switch resolution.Kind {
	case scripts.ResolutionOK:
	case scripts.ResolutionModuleNotFound:
		msg := fmt.Sprintf("Failed to resolve script module: %v. Ensure '%s' is registered with the worker.", resolution.Err, module)
		return failed(domain.ErrorKindModuleResolution, msg, errorTrace(resolution.Err), identifier)
	case scripts.ResolutionFunctionNotFound:
		msg := fmt.Sprintf("Failed to find function '%s' in module '%s': %v.", function, module, resolution.Err)
		return failed(domain.ErrorKindFunctionResolution, msg, errorTrace(resolution.Err), identifier)
	default:
		msg := fmt.Sprintf("Invalid script_identifier format: '%s'. Expected 'module_name.function_name'.", identifier)
		return failed(domain.ErrorKindInvalidScriptIdentifier, msg, errorTrace(resolution.Err), identifier)
	}

	e.joblog.write(ctx, job.ID, domain.LogLevelInfo,
		fmt.Sprintf("Successfully resolved script. Executing now for Job %s.", job.ID), domain.LogSourceWorker)

	value, trace, err := e.invoke(ctx, job, identifier, resolution.Script)
	if err != nil {
		msg := fmt.Sprintf("Error during bot execution for Job %s: %v", job.ID, err)
		return failed(domain.ErrorKindExecution, msg, trace, identifier)
	}

	return domain.Outcome{
		Status:        domain.JobStatusSuccess,
		ResultSummary: summarize(value),
	}
}

// invoke calls the script synchronously with no deadline. A panic is turned
// into an error carrying the goroutine stack.
func (e *Executor) invoke(ctx context.Context, job *domain.Job, identifier string, script scripts.Script) (value any, trace string, err error) {
	metrics.JobsRunning.Inc()
	start := time.Now()
	defer func() {
		metrics.JobsRunning.Dec()
		metrics.ScriptDuration.WithLabelValues(identifier).Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = fmt.Errorf("script panicked: %v", p)
			trace = string(debug.Stack())
		}
	}()

	inv := scripts.Invocation{
		JobID:      job.ID,
		Parameters: job.ParametersUsed,
		InputFiles: job.InputFiles,
		Log:        e.joblog.sink(ctx),
		Progress:   e.progress(ctx, job.ID),
	}
	if inv.Parameters == nil {
		inv.Parameters = map[string]any{}
	}

	value, err = script(ctx, inv)
	if err != nil {
		return nil, errorTrace(err), err
	}
	return value, "", nil
}

// finalize commits the terminal state and completed_at in one transaction,
// conditioned on the job still being RUNNING
func (e *Executor) finalize(ctx context.Context, jobID string, startedAt time.Time, outcome domain.Outcome) Result {
	logger := e.logger.With(slog.String("job_id", jobID))
	outcome.CompletedAt = e.now()
	if outcome.CompletedAt.Before(startedAt) {
		outcome.CompletedAt = startedAt
	}

	res := Result{
		JobID:       jobID,
		Status:      outcome.Status,
		Disposition: DispositionDone,
	}
	if outcome.Status == domain.JobStatusSuccess {
		res.Result = outcome.ResultSummary
	} else {
		res.Error = outcome.ErrorMessage
		res.Kind = outcome.ErrorDetails.Kind
	}

	err := e.jobs.CompleteJob(ctx, jobID, outcome)
	switch {
	case err == nil:
		e.logOutcome(ctx, jobID, outcome)
		metrics.JobsFinishedTotal.WithLabelValues(string(res.Status), string(res.Kind)).Inc()
		logger.Info("Job finished",
			slog.String("status", string(res.Status)),
			slog.String("kind", string(res.Kind)),
		)
	case errors.Is(err, domain.ErrStatusConflict):
		// cancelled while running; the terminal state already recorded wins
		res.Status = e.currentStatus(ctx, jobID)
		e.joblog.write(ctx, jobID, domain.LogLevelWarn,
			fmt.Sprintf("Job %s left RUNNING while the script executed (now %s); %s outcome discarded.", jobID, res.Status, outcome.Status),
			domain.LogSourceWorker)
		logger.Warn("Job no longer RUNNING at completion, outcome discarded",
			slog.String("status", string(res.Status)),
			slog.String("discarded_status", string(outcome.Status)),
		)
	default:
		e.logOutcome(ctx, jobID, outcome)
		logger.Error("Failed to persist job outcome",
			slog.String("status", string(outcome.Status)),
			slog.Any("error", err),
		)
		res.Status = domain.JobStatusRunning
		res.Error = fmt.Sprintf("failed to persist %s outcome: %v", outcome.Status, err)
	}

	return res
}

func (e *Executor) logOutcome(ctx context.Context, jobID string, outcome domain.Outcome) {
	if outcome.Status == domain.JobStatusSuccess {
		e.joblog.write(ctx, jobID, domain.LogLevelInfo,
			fmt.Sprintf("Job %s completed successfully. Result: %s", jobID, outcome.ResultSummary), domain.LogSourceWorker)
		return
	}

	e.joblog.write(ctx, jobID, domain.LogLevelError, outcome.ErrorMessage, domain.LogSourceWorker)
	if outcome.ErrorDetails.Trace != "" {
		e.joblog.write(ctx, jobID, domain.LogLevelDebug, "Traceback: "+outcome.ErrorDetails.Trace, domain.LogSourceWorker)
	}
}

// failQueued finishes a job that must never reach RUNNING
func (e *Executor) failQueued(ctx context.Context, job *domain.Job, kind domain.ErrorKind, msg, trace string) Result {
	outcome := failed(kind, msg, trace, "")
	outcome.CompletedAt = e.now()

	if err := e.jobs.FailQueuedJob(ctx, job.ID, outcome); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return e.skipDuplicate(ctx, job.ID, e.currentStatus(ctx, job.ID))
		}
		e.logger.Error("Failed to mark job failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return Result{JobID: job.ID, Status: job.Status, Error: err.Error(), Disposition: DispositionRetry}
	}

	e.joblog.write(ctx, job.ID, domain.LogLevelError, msg, domain.LogSourceWorker)
	metrics.JobsFinishedTotal.WithLabelValues(string(domain.JobStatusFailed), string(kind)).Inc()
	e.logger.Warn("Job failed before start",
		slog.String("job_id", job.ID),
		slog.String("kind", string(kind)),
	)

	return Result{
		JobID:       job.ID,
		Status:      domain.JobStatusFailed,
		Error:       msg,
		Kind:        kind,
		Disposition: DispositionDone,
	}
}

// skipDuplicate handles a redelivery of a job that is no longer QUEUED
func (e *Executor) skipDuplicate(ctx context.Context, jobID string, status domain.JobStatus) Result {
	metrics.DuplicateDeliveriesTotal.Inc()
	e.logger.Warn("Duplicate delivery, job is not QUEUED; skipping",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
	e.joblog.write(ctx, jobID, domain.LogLevelWarn,
		fmt.Sprintf("Duplicate delivery ignored: job %s is %s, not QUEUED.", jobID, status), domain.LogSourceWorker)

	return Result{JobID: jobID, Status: status, Disposition: DispositionDiscard}
}

func (e *Executor) currentStatus(ctx context.Context, jobID string) domain.JobStatus {
	job, err := e.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return ""
	}
	return job.Status
}

func (e *Executor) progress(ctx context.Context, jobID string) scripts.ProgressFunc {
	return func(percent int, message string) {
		percent = min(max(percent, 0), 100)
		if err := e.jobs.UpdateProgress(ctx, jobID, percent, message); err != nil {
			e.logger.Warn("Failed to update job progress",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}
}

func failed(kind domain.ErrorKind, msg, trace, identifier string) domain.Outcome {
	return domain.Outcome{
		Status:       domain.JobStatusFailed,
		ErrorMessage: msg,
		ErrorDetails: &domain.ErrorDetails{
			Kind:       kind,
			Trace:      trace,
			Identifier: identifier,
		},
	}
}

// summarize renders a script result. Pointers are followed, and a nil or
// empty value gets the placeholder summary.
func summarize(value any) string {
	v := reflect.ValueOf(value)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return domain.DefaultResultSummary
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return domain.DefaultResultSummary
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		if v.Len() == 0 {
			return domain.DefaultResultSummary
		}
	case reflect.Chan, reflect.Func:
		if v.IsNil() {
			return domain.DefaultResultSummary
		}
	}
	return fmt.Sprint(v.Interface())
}
