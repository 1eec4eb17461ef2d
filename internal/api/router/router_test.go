package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/bot-runner/internal/api/dto"
	"github.com/cuongbtq/bot-runner/internal/api/handler"
	"github.com/cuongbtq/bot-runner/internal/dispatch"
	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotID = "8f7d1c2a-4b1e-4f7a-9a51-1d2c3b4a5e60"

type testEnv struct {
	jobs      *fakeJobs
	bots      *fakeBots
	publisher *fakePublisher
	router    *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		jobs: newFakeJobs(),
		bots: newFakeBots(&domain.BotConfiguration{
			ID:                testBotID,
			Name:              "invoice-bot",
			ScriptIdentifier:  "placeholder_bot.run_script",
			DefaultParameters: domain.JSONMap{"region": "eu", "retries": float64(1)},
			IsEnabled:         true,
		}),
		publisher: &fakePublisher{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.router = SetupRouter(&handler.Dependencies{
		Logger:          logger,
		ServiceName:     "bot-runner-api",
		Jobs:            env.jobs,
		Bots:            env.bots,
		Dispatcher:      dispatch.New(env.jobs, env.publisher, logger),
		DB:              fakeDB{},
		LogPollInterval: 10 * time.Millisecond,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	env.router = SetupRouter(&handler.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		DB:     fakeDB{err: errors.New("dial tcp: connection refused")},
	})
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bot_jobs_dispatched_total")
}

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"bot_name":   "invoice-bot",
		"parameters": map[string]any{"retries": 3},
		"input_files": []map[string]string{
			{"original_filename": "a.pdf", "storage_path": "/uploads/a.pdf", "mimetype": "application/pdf"},
		},
	}, handler.UserIDHeader, "user-7")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[domain.Job](t, rec)

	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, testBotID, job.BotConfigID)
	assert.Equal(t, domain.JSONMap{"region": "eu", "retries": float64(3)}, job.ParametersUsed)
	require.Len(t, job.InputFiles, 1)
	assert.Equal(t, "a.pdf", job.InputFiles[0].OriginalFilename)
	require.NotNil(t, job.TriggeredByUserID)
	assert.Equal(t, "user-7", *job.TriggeredByUserID)
	assert.NotNil(t, job.EnqueuedAt)
	assert.Equal(t, []string{job.ID}, env.publisher.published)

	// defaults on the bot are untouched by the snapshot
	bot, err := env.bots.GetBotByID(t.Context(), testBotID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), bot.DefaultParameters["retries"])
}

func TestCreateJob_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"neither bot_id nor bot_name", map[string]any{}, http.StatusBadRequest},
		{"both bot_id and bot_name", map[string]any{"bot_id": testBotID, "bot_name": "invoice-bot"}, http.StatusBadRequest},
		{"malformed bot_id", map[string]any{"bot_id": "nope"}, http.StatusBadRequest},
		{"unknown bot", map[string]any{"bot_id": uuid.NewString()}, http.StatusNotFound},
		{"unknown bot name", map[string]any{"bot_name": "ghost"}, http.StatusNotFound},
		{"not json", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, env.jobs.jobs)
}

func TestCreateJob_BrokerUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.down = true

	rec := env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"bot_id": testBotID})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[dto.DispatchFailedResponse](t, rec)
	require.NotNil(t, resp.Job)
	assert.Contains(t, resp.Error, "/enqueue")

	stored, err := env.jobs.GetJobByID(t.Context(), resp.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)
	assert.Nil(t, stored.EnqueuedAt)

	// broker back: the explicit retry queues it
	env.publisher.down = false
	rec = env.do(t, http.MethodPost, "/api/v1/jobs/"+resp.Job.ID+"/enqueue", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, domain.JobStatusQueued, decode[domain.Job](t, rec).Status)

	// a second retry is refused, not double-published
	rec = env.do(t, http.MethodPost, "/api/v1/jobs/"+resp.Job.ID+"/enqueue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, env.publisher.published, 1)
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)
	created := decode[domain.Job](t, env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"bot_id": testBotID}))

	rec := env.do(t, http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[domain.Job](t, rec).ID)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil).Code)
}

func TestListJobs_Paginates(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		id := uuid.NewString()
		env.jobs.jobs[id] = &domain.Job{
			ID:          id,
			BotConfigID: testBotID,
			Status:      domain.JobStatusSuccess,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
	}

	var seen []string
	cursor := ""
	for page := 0; page < 5; page++ {
		rec := env.do(t, http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+cursor, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.ListJobsResponse](t, rec)
		for _, j := range resp.Jobs {
			seen = append(seen, j.ID)
		}
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/jobs?status=BOGUS", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/jobs?cursor=%25%25", nil).Code)
}

func TestCancelAndDeleteJob(t *testing.T) {
	env := newTestEnv(t)
	created := decode[domain.Job](t, env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"bot_id": testBotID}))
	path := "/api/v1/jobs/" + created.ID

	// still active
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, path, nil).Code)

	rec := env.do(t, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[domain.Job](t, rec)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, path+"/cancel", nil).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
}

func TestListJobLogs(t *testing.T) {
	env := newTestEnv(t)
	created := decode[domain.Job](t, env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"bot_id": testBotID}))
	for _, m := range []string{"one", "two", "three"} {
		env.jobs.appendLog(created.ID, m)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/jobs/"+created.ID+"/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[dto.ListJobLogsResponse](t, rec)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, "one", page.Logs[0].Message)

	rec = env.do(t, http.MethodGet, "/api/v1/jobs/"+created.ID+"/logs?after_id="+jsonNumber(page.NextAfterID), nil)
	page = decode[dto.ListJobLogsResponse](t, rec)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "three", page.Logs[0].Message)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/jobs/"+uuid.NewString()+"/logs", nil).Code)
}

func TestStreamJobLogs(t *testing.T) {
	env := newTestEnv(t)
	created := decode[domain.Job](t, env.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"bot_id": testBotID}))
	env.jobs.appendLog(created.ID, "status: RUNNING")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/" + created.ID + "/logs/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first domain.JobLog
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status: RUNNING", first.Message)

	env.jobs.appendLog(created.ID, "completed")
	env.jobs.setStatus(created.ID, domain.JobStatusSuccess)

	var second domain.JobLog
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "completed", second.Message)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

func TestBots_CRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/bots", map[string]any{
		"name":               "report-bot",
		"script_identifier":  "reports.generate",
		"default_parameters": map[string]any{"format": "pdf"},
	}, handler.UserIDHeader, "admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bot := decode[domain.BotConfiguration](t, rec)
	assert.True(t, bot.IsEnabled)
	require.NotNil(t, bot.CreatedBy)
	assert.Equal(t, "admin", *bot.CreatedBy)

	rec = env.do(t, http.MethodPost, "/api/v1/bots", map[string]any{"name": "report-bot", "script_identifier": "x.y"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/bots", map[string]any{"name": "no-script"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/bots/by-name/report-bot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bot.ID, decode[domain.BotConfiguration](t, rec).ID)

	rec = env.do(t, http.MethodPut, "/api/v1/bots/"+bot.ID, map[string]any{"is_enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[domain.BotConfiguration](t, rec)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, "reports.generate", updated.ScriptIdentifier)

	rec = env.do(t, http.MethodGet, "/api/v1/bots?is_enabled=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Bots []domain.BotConfiguration `json:"bots"`
	}](t, rec)
	require.Len(t, list.Bots, 1)
	assert.Equal(t, "report-bot", list.Bots[0].Name)

	env.bots.inUse[bot.ID] = true
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, "/api/v1/bots/"+bot.ID, nil).Code)
	env.bots.inUse[bot.ID] = false
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/bots/"+bot.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/bots/"+bot.ID, nil).Code)
}

func TestStoreFailureIsHidden(t *testing.T) {
	env := newTestEnv(t)
	env.bots.failed = errors.New("pq: password authentication failed")

	rec := env.do(t, http.MethodGet, "/api/v1/bots/"+testBotID, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
