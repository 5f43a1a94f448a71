package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/domain/pipeline"
	"github.com/target/mmk-pipeline/internal/mocks/memory"
	"github.com/target/mmk-pipeline/internal/service"
)

var fixedNow = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

type fakeWorker struct{ err error }

func (f *fakeWorker) RunTask(context.Context, core.WorkerTaskRequest) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeWorker) Health(context.Context) error { return f.err }

type fixture struct {
	handler   http.Handler
	customers *memory.CustomerRepo
	reminders *memory.ReminderRepo
	jobs      *memory.JobRepo
	worker    *fakeWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }

	customers := memory.NewCustomerRepo()
	customers.Now = clock
	reminders := memory.NewReminderRepo()
	reminders.Now = clock
	jobs := memory.NewJobRepo()

	graph, err := pipeline.NewGraph(pipeline.GraphOptions{Oracle: memory.NewOracle()})
	require.NoError(t, err)
	stages, err := service.NewStageService(service.StageServiceOptions{Customers: customers, Graph: graph})
	require.NoError(t, err)
	remSvc, err := service.NewReminderService(service.ReminderServiceOptions{Repo: reminders, Clock: clock})
	require.NoError(t, err)
	automation, err := service.NewAutomationService(service.AutomationServiceOptions{
		Reminders: remSvc,
		Customers: customers,
		Clock:     clock,
	})
	require.NoError(t, err)
	jobSvc, err := service.NewJobService(service.JobServiceOptions{Repo: jobs, Admin: jobs})
	require.NoError(t, err)

	worker := &fakeWorker{}
	router := NewRouter(RouterServices{
		Stages:     stages,
		Reminders:  remSvc,
		Automation: automation,
		Jobs:       jobSvc,
		Worker:     worker,
	})
	return &fixture{
		handler:   Wrap(router, nil, 1<<10),
		customers: customers,
		reminders: reminders,
		jobs:      jobs,
		worker:    worker,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = f.do(t, http.MethodGet, "/api/worker/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.worker.err = errors.New("connection refused")
	rec = f.do(t, http.MethodGet, "/api/worker/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCustomerTransitions(t *testing.T) {
	f := newFixture(t)
	f.customers.Seed("c1", model.StageNewLead, time.Time{})

	rec := f.do(t, http.MethodPost, "/api/customers/c1/transitions", `{"target":"WARMING_UP","notes":"replied"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[service.TransitionOutcome](t, rec)
	assert.True(t, out.Result.Allowed)
	require.NotNil(t, out.Transition)
	assert.Equal(t, model.StageWarmingUp, out.Transition.ToStage)

	rec = f.do(t, http.MethodPost, "/api/customers/c1/transitions", `{"target":"CLOSED_WON"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	out = decode[service.TransitionOutcome](t, rec)
	assert.False(t, out.Result.Allowed)
	assert.NotEmpty(t, out.Result.Reason)

	rec = f.do(t, http.MethodGet, "/api/customers/c1/transitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[struct {
		Transitions []model.StageTransition `json:"transitions"`
	}](t, rec)
	require.Len(t, hist.Transitions, 1)
	assert.Equal(t, model.StageNewLead, hist.Transitions[0].FromStage)

	rec = f.do(t, http.MethodGet, "/api/customers/c1/next-stages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(model.StageInvited))

	rec = f.do(t, http.MethodGet, "/api/customers/c1/recommendation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "confidence")
}

func TestCustomerTransitions_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "unknown customer", path: "/api/customers/missing/transitions", body: `{"target":"WARMING_UP"}`,
			status: http.StatusNotFound, code: "not_found"},
		{name: "bad stage", path: "/api/customers/c1/transitions", body: `{"target":"SOMEWHERE"}`,
			status: http.StatusBadRequest, code: "validation"},
		{name: "unknown field", path: "/api/customers/c1/transitions", body: `{"target":"WARMING_UP","x":1}`,
			status: http.StatusBadRequest, code: "invalid_json"},
		{name: "body too large", path: "/api/customers/c1/transitions",
			body:   `{"target":"WARMING_UP","notes":"` + strings.Repeat("a", 2048) + `"}`,
			status: http.StatusRequestEntityTooLarge, code: "body_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	f.customers.Seed("c1", model.StageInvited, time.Time{})

	rec := f.do(t, http.MethodPost, "/api/events", `{"event_name":"NO_SHOW","customer_id":"c1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	out := decode[eventResponse](t, rec)
	assert.Equal(t, service.TriggerDelivered, out.Status)
	require.Len(t, out.Reminders, 2)
	assert.Equal(t, fixedNow.Add(2*time.Hour), out.Reminders[0].ScheduledFor.UTC())

	rec = f.do(t, http.MethodPost, "/api/events", `{"event_name":"SOMETHING_ELSE","customer_id":"c1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	out = decode[eventResponse](t, rec)
	assert.Equal(t, service.TriggerSkipped, out.Status)
	assert.Empty(t, out.Reminders)
}

func TestReminders(t *testing.T) {
	f := newFixture(t)
	past := fixedNow.Add(-time.Hour).Format(time.RFC3339)
	future := fixedNow.Add(time.Hour).Format(time.RFC3339)

	rec := f.do(t, http.MethodPost, "/api/reminders",
		`{"customer_id":"c1","type":"FOLLOW_UP","message":"call","scheduled_for":"`+past+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	due := decode[model.Reminder](t, rec)

	rec = f.do(t, http.MethodPost, "/api/reminders",
		`{"customer_id":"c1","type":"FOLLOW_UP","message":"later","scheduled_for":"`+future+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	later := decode[model.Reminder](t, rec)

	type list struct {
		Reminders []model.Reminder `json:"reminders"`
	}

	rec = f.do(t, http.MethodGet, "/api/reminders/due", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[list](t, rec)
	require.Len(t, got.Reminders, 1)
	assert.Equal(t, due.ID, got.Reminders[0].ID)

	rec = f.do(t, http.MethodGet, "/api/reminders/due?at="+fixedNow.Add(2*time.Hour).Format(time.RFC3339), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[list](t, rec).Reminders, 2)

	rec = f.do(t, http.MethodGet, "/api/reminders/due?at=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/customers/c1/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[list](t, rec)
	require.Len(t, all.Reminders, 2)
	assert.Equal(t, due.ID, all.Reminders[0].ID)

	rec = f.do(t, http.MethodPatch, "/api/reminders/"+later.ID, `{"message":"much later"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "much later", decode[model.Reminder](t, rec).Message)

	rec = f.do(t, http.MethodPatch, "/api/reminders/"+later.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for range 2 {
		rec = f.do(t, http.MethodPost, "/api/reminders/"+due.ID+"/complete", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[model.Reminder](t, rec).Completed)
	}
	rec = f.do(t, http.MethodPost, "/api/reminders/missing/complete", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/reminders/"+later.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/reminders/"+later.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs",
		`{"target":"agent-a","payload":{"type":"ai_task","taskType":"summarize"},"priority":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[model.Job](t, rec)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, model.JobTaskAI, job.TaskType)

	rec = f.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.ID, decode[model.Job](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.ID)

	rec = f.do(t, http.MethodGet, "/api/jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs", `{"payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_OptionalServices(t *testing.T) {
	h := NewRouter(RouterServices{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
