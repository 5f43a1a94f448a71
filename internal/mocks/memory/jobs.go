// Package memory contains in-memory test doubles for the pipeline ports.
// They follow the same conditional-update rules as the postgres repositories
// so service tests can assert state transitions without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

var (
	_ core.JobRepository        = (*JobRepo)(nil)
	_ core.ReconcilerRepository = (*JobRepo)(nil)
	_ core.JobAdminRepository   = (*JobRepo)(nil)
)

// JobRepo is an in-memory job queue.
type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	seq  int

	// Now defaults to time.Now.
	Now func() time.Time
	// ListPendingErr, when set, is returned by ListPending.
	ListPendingErr error
	// ClaimCalls counts Claim invocations.
	ClaimCalls int
}

// NewJobRepo returns an empty queue.
func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*model.Job)}
}

func (r *JobRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Create enqueues a pending job.
func (r *JobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	req.ResolveTaskType()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return r.Seed(model.Job{
		Target:        strings.TrimSpace(req.Target),
		TaskType:      req.TaskType,
		Payload:       payload,
		Priority:      req.Priority,
		CorrelationID: req.CorrelationID,
		MaxRetries:    maxRetries,
	}), nil
}

// Seed inserts a job as given, filling id, status and timestamps when empty.
// Jobs seeded later sort after earlier ones at equal priority.
func (r *JobRepo) Seed(job model.Job) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if job.TaskType == "" {
		job.TaskType = model.JobTaskGeneric
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now().Add(time.Duration(r.seq) * time.Microsecond)
	}
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = &job
	return cloneJob(&job)
}

// GetByID returns a copy of the job.
func (r *JobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// All returns every job ordered by creation.
func (r *JobRepo) All() []*model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// ListPending returns pending jobs by priority DESC, created_at ASC.
func (r *JobRepo) ListPending(_ context.Context, limit int) ([]*model.Job, error) {
	if r.ListPendingErr != nil {
		return nil, r.ListPendingErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusPending {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Priority != out[k].Priority {
			return out[i].Priority > out[k].Priority
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Claim moves a pending job with attempts left to processing.
func (r *JobRepo) Claim(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ClaimCalls++

	job, ok := r.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	if job.Status != model.JobStatusPending || job.Attempts >= job.MaxRetries {
		return nil, data.ErrJobNotClaimable
	}
	now := r.now()
	job.Status = model.JobStatusProcessing
	job.Attempts++
	job.StartedAt = &now
	job.UpdatedAt = now
	return cloneJob(job), nil
}

// Complete records a successful run.
func (r *JobRepo) Complete(_ context.Context, params core.CompleteJobParams) (*model.Job, error) {
	return r.transition(params.ID, []model.JobStatus{model.JobStatusProcessing}, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusCompleted
		j.Result = params.Result
		if len(j.Result) == 0 {
			j.Result = json.RawMessage(`{}`)
		}
		j.CompletedAt = &now
	})
}

// Requeue returns a processing job to pending.
func (r *JobRepo) Requeue(_ context.Context, params core.FailJobParams) (*model.Job, error) {
	return r.transition(params.ID, []model.JobStatus{model.JobStatusProcessing}, func(j *model.Job, _ time.Time) {
		j.Status = model.JobStatusPending
	})
}

// Fail moves a pending or processing job to failed with {"error": message} as result.
func (r *JobRepo) Fail(_ context.Context, params core.FailJobParams) (*model.Job, error) {
	msg := strings.TrimSpace(params.Message)
	if msg == "" {
		msg = "job failed"
	}
	allowed := []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing}
	return r.transition(params.ID, allowed, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusFailed
		j.Result, _ = json.Marshal(map[string]string{"error": msg})
		j.CompletedAt = &now
	})
}

func (r *JobRepo) transition(id string, from []model.JobStatus, apply func(*model.Job, time.Time)) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	for _, s := range from {
		if job.Status == s {
			now := r.now()
			apply(job, now)
			job.UpdatedAt = now
			return cloneJob(job), nil
		}
	}
	return nil, data.ErrJobStateConflict
}

// ListByStatus returns jobs in status, most recently updated first.
func (r *JobRepo) ListByStatus(_ context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Retry resets a failed job to pending.
func (r *JobRepo) Retry(_ context.Context, id string) (*model.Job, error) {
	return r.transition(id, []model.JobStatus{model.JobStatusFailed}, func(j *model.Job, _ time.Time) {
		j.Status = model.JobStatusPending
		j.Attempts = 0
		j.Result = nil
		j.StartedAt = nil
		j.CompletedAt = nil
	})
}

// ReconcileProcessing requeues or fails processing jobs not updated within StaleAfter.
func (r *JobRepo) ReconcileProcessing(_ context.Context, params core.ReconcileParams) (core.ReconcileCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts core.ReconcileCounts
	now := r.now()
	cutoff := now.Add(-params.StaleAfter)
	for _, j := range r.jobs {
		if params.BatchSize > 0 && counts.Requeued+counts.Failed >= int64(params.BatchSize) {
			break
		}
		if j.Status != model.JobStatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		j.UpdatedAt = now
		if j.Attempts < j.MaxRetries {
			j.Status = model.JobStatusPending
			counts.Requeued++
			continue
		}
		j.Status = model.JobStatusFailed
		j.Result = json.RawMessage(`{"error":"processing timed out"}`)
		j.CompletedAt = &now
		counts.Failed++
	}
	return counts, nil
}

// DeleteOldJobs removes terminal jobs older than MaxAge.
func (r *JobRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("status %q is not terminal", params.Status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-params.MaxAge)
	var n int64
	for id, j := range r.jobs {
		if params.BatchSize > 0 && n >= int64(params.BatchSize) {
			break
		}
		if j.Status == params.Status && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}
