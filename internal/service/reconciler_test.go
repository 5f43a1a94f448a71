package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/mocks/memory"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// scriptedReconcileRepo replays queued batch results and records every call.
type scriptedReconcileRepo struct {
	mu sync.Mutex

	reconcile    []core.ReconcileCounts
	reconcileErr error
	deletes      map[model.JobStatus][]int64
	deleteErr    map[model.JobStatus]error

	reconcileCalls []core.ReconcileParams
	deleteCalls    []core.DeleteOldJobsParams
}

func newScriptedReconcileRepo() *scriptedReconcileRepo {
	return &scriptedReconcileRepo{
		deletes:   make(map[model.JobStatus][]int64),
		deleteErr: make(map[model.JobStatus]error),
	}
}

func (r *scriptedReconcileRepo) ReconcileProcessing(
	_ context.Context,
	params core.ReconcileParams,
) (core.ReconcileCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcileCalls = append(r.reconcileCalls, params)
	if r.reconcileErr != nil {
		return core.ReconcileCounts{}, r.reconcileErr
	}
	if len(r.reconcile) == 0 {
		return core.ReconcileCounts{}, nil
	}
	next := r.reconcile[0]
	r.reconcile = r.reconcile[1:]
	return next, nil
}

func (r *scriptedReconcileRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls = append(r.deleteCalls, params)
	if err := r.deleteErr[params.Status]; err != nil {
		return 0, err
	}
	queue := r.deletes[params.Status]
	if len(queue) == 0 {
		return 0, nil
	}
	r.deletes[params.Status] = queue[1:]
	return queue[0], nil
}

func (r *scriptedReconcileRepo) reconcileCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reconcileCalls)
}

var reconcilerTestConfig = config.ReconcilerConfig{
	Interval:        20 * time.Millisecond,
	CompletedMaxAge: time.Hour,
	FailedMaxAge:    2 * time.Hour,
	ReminderMaxAge:  24 * time.Hour,
	BatchSize:       2,
}

func newReconciler(t *testing.T, opts ReconcilerServiceOptions) *ReconcilerService {
	t.Helper()
	if opts.Config == (config.ReconcilerConfig{}) {
		opts.Config = reconcilerTestConfig
	}
	if opts.ProcessingTimeout == 0 {
		opts.ProcessingTimeout = 5 * time.Minute
	}
	svc, err := NewReconcilerService(opts)
	require.NoError(t, err)
	return svc
}

func TestNewReconcilerService_Validation(t *testing.T) {
	_, err := NewReconcilerService(ReconcilerServiceOptions{ProcessingTimeout: time.Minute})
	assert.Error(t, err)

	_, err = NewReconcilerService(ReconcilerServiceOptions{Repo: newScriptedReconcileRepo()})
	assert.Error(t, err)
}

func TestReconcilerService_RunOnce_DrainsBatches(t *testing.T) {
	repo := newScriptedReconcileRepo()
	repo.reconcile = []core.ReconcileCounts{{Requeued: 2}, {Requeued: 1, Failed: 1}}
	repo.deletes[model.JobStatusCompleted] = []int64{2, 2, 1}
	repo.deletes[model.JobStatusFailed] = []int64{1}
	rec := &statsd.Recorder{}

	svc := newReconciler(t, ReconcilerServiceOptions{Repo: repo, Metrics: rec})
	require.NoError(t, svc.RunOnce(context.Background()))

	// Two productive reconcile batches plus the empty one that ends the loop.
	assert.Len(t, repo.reconcileCalls, 3)
	assert.Equal(t, 5*time.Minute, repo.reconcileCalls[0].StaleAfter)
	assert.Equal(t, 2, repo.reconcileCalls[0].BatchSize)

	var completedCalls, failedCalls int
	for _, c := range repo.deleteCalls {
		switch c.Status {
		case model.JobStatusCompleted:
			completedCalls++
			assert.Equal(t, time.Hour, c.MaxAge)
		case model.JobStatusFailed:
			failedCalls++
			assert.Equal(t, 2*time.Hour, c.MaxAge)
		}
	}
	assert.Equal(t, 4, completedCalls)
	assert.Equal(t, 2, failedCalls)

	pass := rec.Find("reconciler.pass")
	require.Len(t, pass, 1)
	assert.Equal(t, "success", pass[0].Tags["result"])
	assert.Len(t, rec.Find("reconciler.last_success_epoch"), 1)

	rows := map[string]float64{}
	for _, s := range rec.Find("reconciler.rows") {
		rows[s.Tags["operation"]] = s.Value
	}
	assert.Equal(t, map[string]float64{
		"reconcile_processing": 4,
		"delete_completed":     5,
		"delete_failed":        1,
	}, rows)
}

func TestReconcilerService_RunOnce_StepsIndependent(t *testing.T) {
	repo := newScriptedReconcileRepo()
	repo.reconcileErr = errors.New("connection reset")
	repo.deletes[model.JobStatusFailed] = []int64{1}
	rec := &statsd.Recorder{}

	svc := newReconciler(t, ReconcilerServiceOptions{Repo: repo, Metrics: rec})
	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile processing jobs")
	assert.Contains(t, err.Error(), "connection reset")

	// Deletes still ran after the reconcile step failed.
	assert.Len(t, repo.deleteCalls, 3)

	pass := rec.Find("reconciler.pass")
	require.Len(t, pass, 1)
	assert.Equal(t, "error", pass[0].Tags["result"])
	assert.NotEmpty(t, pass[0].Tags["error_class"])
	assert.Empty(t, rec.Find("reconciler.last_success_epoch"))
}

func TestReconcilerService_RunOnce_AllCanceled(t *testing.T) {
	repo := newScriptedReconcileRepo()
	repo.reconcileErr = context.Canceled
	repo.deleteErr[model.JobStatusCompleted] = context.Canceled
	repo.deleteErr[model.JobStatusFailed] = context.Canceled

	svc := newReconciler(t, ReconcilerServiceOptions{Repo: repo})
	err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcilerService_RunOnce_PrunesReminders(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reminders := memory.NewReminderRepo()
	reminders.Now = func() time.Time { return now.Add(-48 * time.Hour) }
	ctx := context.Background()

	old, err := reminders.Create(ctx, &model.CreateReminderRequest{
		CustomerID: "c1", Type: model.ReminderFollowUp, ScheduledFor: now.Add(-72 * time.Hour),
	})
	require.NoError(t, err)
	_, err = reminders.MarkCompleted(ctx, old.ID)
	require.NoError(t, err)
	open, err := reminders.Create(ctx, &model.CreateReminderRequest{
		CustomerID: "c1", Type: model.ReminderFollowUp, ScheduledFor: now.Add(-72 * time.Hour),
	})
	require.NoError(t, err)

	svc := newReconciler(t, ReconcilerServiceOptions{
		Repo:      newScriptedReconcileRepo(),
		Reminders: reminders,
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, svc.RunOnce(ctx))

	_, err = reminders.GetByID(ctx, old.ID)
	assert.Error(t, err, "completed reminder past retention is deleted")
	_, err = reminders.GetByID(ctx, open.ID)
	assert.NoError(t, err, "open reminder is kept regardless of age")
}

func TestReconcilerService_RecoversAbandonedJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := memory.NewJobRepo()
	jobs.Now = func() time.Time { return now }
	stale := jobs.Seed(model.Job{
		TaskType:   model.JobTaskGeneric,
		Target:     "agent-a",
		Status:     model.JobStatusProcessing,
		Attempts:   1,
		MaxRetries: 3,
		CreatedAt:  now.Add(-time.Hour),
	})
	spent := jobs.Seed(model.Job{
		TaskType:   model.JobTaskGeneric,
		Target:     "agent-a",
		Status:     model.JobStatusProcessing,
		Attempts:   3,
		MaxRetries: 3,
		CreatedAt:  now.Add(-time.Hour),
	})

	svc := newReconciler(t, ReconcilerServiceOptions{Repo: jobs})
	require.NoError(t, svc.RunOnce(context.Background()))

	got, err := jobs.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)

	got, err = jobs.GetByID(context.Background(), spent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestReconcilerService_Run(t *testing.T) {
	t.Run("returns nil on cancel", func(t *testing.T) {
		repo := newScriptedReconcileRepo()
		svc := newReconciler(t, ReconcilerServiceOptions{Repo: repo})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool { return repo.reconcileCallCount() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after cancel")
		}
	})

	t.Run("returns deadline error", func(t *testing.T) {
		svc := newReconciler(t, ReconcilerServiceOptions{Repo: newScriptedReconcileRepo()})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
	})
}
