package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
)

// memStore is an in-memory JobStore recording every status a job passes through
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	history map[string][]domain.JobStatus
	logs    []domain.JobLog
	nextLog int64

	loadErr   error
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]*domain.Job),
		history: make(map[string][]domain.JobStatus),
	}
}

func (m *memStore) put(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.history[job.ID] = append(m.history[job.ID], job.Status)
}

func (m *memStore) GetJobByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) transition(jobID string, from []domain.JobStatus, apply func(*domain.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	for _, s := range from {
		if job.Status == s {
			apply(job)
			m.history[jobID] = append(m.history[jobID], job.Status)
			return nil
		}
	}
	return domain.ErrStatusConflict
}

func (m *memStore) ClaimJob(_ context.Context, jobID string, startedAt time.Time) error {
	return m.transition(jobID, []domain.JobStatus{domain.JobStatusQueued}, func(j *domain.Job) {
		j.Status = domain.JobStatusRunning
		j.StartedAt = &startedAt
	})
}

func (m *memStore) FailQueuedJob(_ context.Context, jobID string, outcome domain.Outcome) error {
	return m.transition(jobID, []domain.JobStatus{domain.JobStatusQueued}, finish(outcome))
}

func (m *memStore) CompleteJob(_ context.Context, jobID string, outcome domain.Outcome) error {
	return m.transition(jobID, []domain.JobStatus{domain.JobStatusRunning}, finish(outcome))
}

func (m *memStore) cancel(jobID string, at time.Time) error {
	active := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusQueued, domain.JobStatusRunning}
	return m.transition(jobID, active, func(j *domain.Job) {
		j.Status = domain.JobStatusCancelled
		j.CompletedAt = &at
	})
}

func finish(outcome domain.Outcome) func(*domain.Job) {
	return func(j *domain.Job) {
		at := outcome.CompletedAt
		j.Status = outcome.Status
		j.CompletedAt = &at
		j.ErrorDetails = outcome.ErrorDetails
		if outcome.ResultSummary != "" {
			s := outcome.ResultSummary
			j.ResultSummary = &s
		}
		if outcome.ErrorMessage != "" {
			s := outcome.ErrorMessage
			j.ErrorMessage = &s
		}
	}
}

func (m *memStore) UpdateProgress(_ context.Context, jobID string, percent int, message string) error {
	return m.transition(jobID, []domain.JobStatus{domain.JobStatusRunning}, func(j *domain.Job) {
		j.ProgressPercent = &percent
		j.ProgressMessage = &message
	})
}

func (m *memStore) AppendLog(_ context.Context, entry *domain.JobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.nextLog++
	entry.ID = m.nextLog
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) jobLogs(jobID string) []domain.JobLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JobLog
	for _, l := range m.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) statuses(jobID string) []domain.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.JobStatus(nil), m.history[jobID]...)
}

type memBots map[string]*domain.BotConfiguration

func (b memBots) GetBotByID(_ context.Context, botID string) (*domain.BotConfiguration, error) {
	bot, ok := b[botID]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return bot, nil
}

type failingBots struct{}

func (failingBots) GetBotByID(context.Context, string) (*domain.BotConfiguration, error) {
	return nil, errors.New("connection refused")
}
