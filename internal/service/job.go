package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository      // Required: job repository
	Admin  core.JobAdminRepository // Optional: enables List and Retry
	Logger *slog.Logger            // Optional: structured logger
}

// JobService enqueues jobs for the dispatcher and exposes the operator actions.
type JobService struct {
	repo   core.JobRepository
	admin  core.JobAdminRepository
	logger *slog.Logger
}

const maxJobListLimit = 500

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:   opts.Repo,
		admin:  opts.Admin,
		logger: logger.With("component", "job_service"),
	}, nil
}

// Enqueue validates and stores a pending job. The task type falls back to payload.type.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("job request is required")
	}
	req.ResolveTaskType()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, mapRepoError(err, "create job")
	}
	s.logger.DebugContext(ctx, "job enqueued",
		"job_id", job.ID,
		"target", job.Target,
		"task_type", job.TaskType,
		"priority", job.Priority,
	)
	return job, nil
}

// Get returns the job or a not_found error.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, mapRepoError(err, "get job")
	}
	return job, nil
}

// List returns jobs in status, newest first. limit is clamped to [1, 500].
func (s *JobService) List(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if s.admin == nil {
		return nil, apperrors.Internal("job listing is not configured")
	}
	if !status.Valid() {
		return nil, apperrors.ValidationField("status", "unknown job status")
	}
	limit = min(max(limit, 1), maxJobListLimit)
	out, err := s.admin.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, mapRepoError(err, "list jobs")
	}
	return out, nil
}

// Retry gives a failed job a fresh retry budget. Jobs that are not failed are a conflict.
func (s *JobService) Retry(ctx context.Context, id string) (*model.Job, error) {
	if s.admin == nil {
		return nil, apperrors.Internal("job retry is not configured")
	}
	job, err := s.admin.Retry(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, mapRepoError(err, "retry job")
	}
	s.logger.InfoContext(ctx, "job retried", "job_id", job.ID, "target", job.Target)
	return job, nil
}
