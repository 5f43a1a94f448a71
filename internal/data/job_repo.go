package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data/pgxutil"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

// RepoConfig holds configuration options shared by the repositories.
type RepoConfig struct {
	// DefaultMaxRetries applies to jobs created without an explicit limit.
	DefaultMaxRetries int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for the job queue.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: resolveTimeProvider(cfg.TimeProvider),
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `id, target, task_type, payload, priority, correlation_id, status, attempts,
	max_retries, result, started_at, completed_at, created_at, updated_at`

func (r *JobRepo) maxRetries(req *model.CreateJobRequest) int {
	switch {
	case req.MaxRetries > 0:
		return req.MaxRetries
	case r.cfg.DefaultMaxRetries > 0:
		return r.cfg.DefaultMaxRetries
	default:
		return model.DefaultMaxRetries
	}
}

// Create enqueues a pending job. The task type falls back to payload.type.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	req.ResolveTaskType()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	now := r.timeProvider.Now()

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				INSERT INTO jobs (id, target, task_type, payload, priority, correlation_id, status,
					attempts, max_retries, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, $8, $8)
				RETURNING `+jobColumns,
				uuid.NewString(), strings.TrimSpace(req.Target), string(req.TaskType), []byte(payload),
				req.Priority, req.CorrelationID, r.maxRetries(req), now,
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			job, err = collectJobFromRows(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetByID returns the job or ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	job, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListPending returns up to limit pending jobs in pickup order.
func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.Job, 0, limit)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Claim moves a pending job with attempts left to processing and counts the attempt.
func (r *JobRepo) Claim(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	now := r.timeProvider.Now()
	job, err := scanJob(r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing',
			attempts = attempts + 1,
			started_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'pending' AND attempts < max_retries
		RETURNING `+jobColumns, id, now))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrJobNotClaimable
}

// Complete records a successful run.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (*model.Job, error) {
	result := params.Result
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	now := r.timeProvider.Now()
	return r.transition(ctx, transitionQuery{
		id: params.ID,
		query: `
			UPDATE jobs
			SET status = 'completed', result = $2, completed_at = $3, updated_at = $3
			WHERE id = $1 AND status = 'processing'
			RETURNING ` + jobColumns,
		args: []any{params.ID, []byte(result), now},
	})
}

// Requeue returns a processing job to pending after a retryable failure.
func (r *JobRepo) Requeue(ctx context.Context, params core.FailJobParams) (*model.Job, error) {
	r.logger.DebugContext(ctx, "requeue job", "job_id", params.ID, "error", params.Message)
	return r.transition(ctx, transitionQuery{
		id: params.ID,
		query: `
			UPDATE jobs
			SET status = 'pending', updated_at = $2
			WHERE id = $1 AND status = 'processing'
			RETURNING ` + jobColumns,
		args: []any{params.ID, r.timeProvider.Now()},
	})
}

// Fail moves a pending or processing job to failed and stores {"error": message} as its result.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) (*model.Job, error) {
	msg := strings.TrimSpace(params.Message)
	if msg == "" {
		msg = "job failed"
	}
	now := r.timeProvider.Now()
	return r.transition(ctx, transitionQuery{
		id: params.ID,
		query: `
			UPDATE jobs
			SET status = 'failed',
				result = jsonb_build_object('error', $2::text),
				completed_at = $3,
				updated_at = $3
			WHERE id = $1 AND status IN ('pending', 'processing')
			RETURNING ` + jobColumns,
		args: []any{params.ID, msg, now},
	})
}

type transitionQuery struct {
	id    string
	query string
	args  []any
}

func (r *JobRepo) transition(ctx context.Context, q transitionQuery) (*model.Job, error) {
	if _, err := uuid.Parse(q.id); err != nil {
		return nil, ErrJobNotFound
	}
	job, err := scanJob(r.DB.QueryRowContext(ctx, q.query, q.args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	if _, getErr := r.GetByID(ctx, q.id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrJobStateConflict
}

func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return job, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                    model.Job
		payload, result        []byte
		correlationID          sql.NullString
		startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.Target, &job.TaskType, &payload, &job.Priority, &correlationID, &job.Status,
		&job.Attempts, &job.MaxRetries, &result, &startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = cloneJSON(payload)
	if len(result) > 0 {
		job.Result = append(json.RawMessage(nil), result...)
	}
	if correlationID.Valid {
		job.CorrelationID = &correlationID.String
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}
