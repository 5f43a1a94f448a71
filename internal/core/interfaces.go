// Package core declares the ports the pipeline services depend on. Implementations
// live in internal/data and internal/adapters.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/mmk-pipeline/internal/domain/model"
)

// Interface design note:
// Methods taking more than three parameters use a Params struct instead.

// ReminderRepository persists reminders.
type ReminderRepository interface {
	Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error)
	GetByID(ctx context.Context, id string) (*model.Reminder, error)
	// ListDue returns incomplete reminders scheduled at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time) ([]*model.Reminder, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*model.Reminder, error)
	// MarkCompleted returns the row unchanged when it is already completed and
	// ErrReminderNotFound when no such reminder exists.
	MarkCompleted(ctx context.Context, id string) (*model.Reminder, error)
	Update(ctx context.Context, id string, req *model.UpdateReminderRequest) (*model.Reminder, error)
	Delete(ctx context.Context, id string) (bool, error)
	HasOpen(ctx context.Context, customerID string, reminderType model.ReminderType) (bool, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CompleteJobParams groups parameters for JobRepository.Complete.
type CompleteJobParams struct {
	ID     string
	Result json.RawMessage
}

// FailJobParams groups parameters for JobRepository.Fail and Requeue.
type FailJobParams struct {
	ID      string
	Message string
}

// JobRepository is the persisted job queue used by the dispatcher.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ListPending returns up to limit pending jobs ordered by priority DESC, created_at ASC.
	ListPending(ctx context.Context, limit int) ([]*model.Job, error)
	// Claim moves a pending job to processing and increments attempts. It returns
	// ErrJobNotClaimable when the job is no longer pending.
	Claim(ctx context.Context, id string) (*model.Job, error)
	Complete(ctx context.Context, params CompleteJobParams) (*model.Job, error)
	// Requeue moves a processing job back to pending after a retryable failure.
	Requeue(ctx context.Context, params FailJobParams) (*model.Job, error)
	// Fail moves a pending or processing job to failed, recording the message in result.
	Fail(ctx context.Context, params FailJobParams) (*model.Job, error)
}

// JobAdminRepository is the operator surface of the job queue.
type JobAdminRepository interface {
	// ListByStatus returns up to limit jobs in status, newest first.
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	// Retry resets a failed job to pending with a fresh retry budget.
	Retry(ctx context.Context, id string) (*model.Job, error)
}

// ListStaleParams groups parameters for CustomerRepository.ListStale.
type ListStaleParams struct {
	Stage     model.PipelineStage
	Before    time.Time
	BatchSize int
}

// TransitionParams groups parameters for CustomerRepository.ApplyTransition.
type TransitionParams struct {
	CustomerID string
	From       model.PipelineStage
	To         model.PipelineStage
	Notes      *string
}

// CustomerRepository reads customers and applies stage changes.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	// ApplyTransition updates the status only if it still equals params.From and appends
	// the transition log entry in the same transaction.
	ApplyTransition(ctx context.Context, params TransitionParams) (*model.StageTransition, error)
	ListTransitions(ctx context.Context, customerID string) ([]*model.StageTransition, error)
	ListStale(ctx context.Context, params ListStaleParams) ([]*model.Customer, error)
}

// AgentRepository stores job targets.
type AgentRepository interface {
	Get(ctx context.Context, name string) (*model.Agent, error)
	// MergeState shallow-merges patch into the agent's state blob.
	MergeState(ctx context.Context, name string, patch map[string]any) error
	AppendMessage(ctx context.Context, name string, msg model.AgentMessage) error
}

// WorkerTaskRequest is a call to the external AI worker.
type WorkerTaskRequest struct {
	TaskType string
	Body     map[string]any
}

// WorkerClient calls the external AI worker.
type WorkerClient interface {
	RunTask(ctx context.Context, req WorkerTaskRequest) (json.RawMessage, error)
	Health(ctx context.Context) error
}

// TickLocker provides a cross-instance lock so only one dispatcher ticks at a time.
type TickLocker interface {
	// TryLock returns a release func when the lock was acquired, or ok=false when another
	// holder owns it.
	TryLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// ReconcileParams groups parameters for ReconcilerRepository.ReconcileProcessing.
type ReconcileParams struct {
	StaleAfter time.Duration
	BatchSize  int
}

// DeleteOldJobsParams groups parameters for ReconcilerRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReconcileCounts reports what a reconcile batch did.
type ReconcileCounts struct {
	Requeued int64
	Failed   int64
}

// ReconcilerRepository is the maintenance surface of the job queue.
type ReconcilerRepository interface {
	// ReconcileProcessing returns processing rows older than StaleAfter to pending,
	// or to failed when they have no attempts left.
	ReconcileProcessing(ctx context.Context, params ReconcileParams) (ReconcileCounts, error)
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
