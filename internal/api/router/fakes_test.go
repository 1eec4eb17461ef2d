package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/cuongbtq/bot-runner/internal/storage"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	logs []domain.JobLog
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*domain.Job)}
}

func (f *fakeJobs) CreateJob(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetJobByID(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobs) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, j := range f.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !j.CreatedAt.Before(filter.Cursor.CreatedAt) {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (f *fakeJobs) setStatus(jobID string, status domain.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Status = status
}

func (f *fakeJobs) MarkQueued(_ context.Context, jobID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return domain.ErrJobNotPending
	}
	job.Status = domain.JobStatusQueued
	job.EnqueuedAt = &at
	return nil
}

func (f *fakeJobs) RevertQueued(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	job.Status = domain.JobStatusPending
	job.EnqueuedAt = nil
	return nil
}

func (f *fakeJobs) CancelJob(_ context.Context, jobID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return domain.ErrStatusConflict
	}
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &at
	return nil
}

func (f *fakeJobs) DeleteJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if !job.Status.IsTerminal() {
		return domain.ErrJobNotTerminal
	}
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeJobs) appendLog(jobID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, domain.JobLog{
		ID:        int64(len(f.logs) + 1),
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		LogLevel:  domain.LogLevelInfo,
		Message:   message,
		Source:    domain.LogSourceWorker,
	})
}

func (f *fakeJobs) ListLogs(_ context.Context, jobID string, afterID int64, limit int) ([]domain.JobLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobLog
	for _, l := range f.logs {
		if l.JobID == jobID && l.ID > afterID {
			out = append(out, l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeBots struct {
	mu     sync.Mutex
	bots   map[string]*domain.BotConfiguration
	inUse  map[string]bool
	failed error
}

func newFakeBots(bots ...*domain.BotConfiguration) *fakeBots {
	f := &fakeBots{bots: make(map[string]*domain.BotConfiguration), inUse: make(map[string]bool)}
	for _, b := range bots {
		f.bots[b.ID] = b
	}
	return f
}

func (f *fakeBots) GetBotByID(_ context.Context, botID string) (*domain.BotConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed != nil {
		return nil, f.failed
	}
	b, ok := f.bots[botID]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBots) GetBotByName(_ context.Context, name string) (*domain.BotConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bots {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBotNotFound
}

func (f *fakeBots) ListBots(_ context.Context, filter storage.BotFilter) ([]domain.BotConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.BotConfiguration{}
	for _, b := range f.bots {
		if filter.IsEnabled != nil && b.IsEnabled != *filter.IsEnabled {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (f *fakeBots) CreateBot(_ context.Context, bot *domain.BotConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bots {
		if b.Name == bot.Name {
			return domain.ErrDuplicateBotName
		}
	}
	cp := *bot
	f.bots[bot.ID] = &cp
	return nil
}

func (f *fakeBots) UpdateBot(_ context.Context, bot *domain.BotConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bots[bot.ID]; !ok {
		return domain.ErrBotNotFound
	}
	cp := *bot
	f.bots[bot.ID] = &cp
	return nil
}

func (f *fakeBots) DeleteBot(_ context.Context, botID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bots[botID]; !ok {
		return domain.ErrBotNotFound
	}
	if f.inUse[botID] {
		return domain.ErrBotInUse
	}
	delete(f.bots, botID)
	return nil
}

// fakePublisher fails while down is set
type fakePublisher struct {
	mu        sync.Mutex
	down      bool
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errors.New("connection refused")
	}
	p.published = append(p.published, jobID)
	return nil
}

type fakeDB struct{ err error }

func (d fakeDB) HealthCheck(context.Context) error { return d.err }
