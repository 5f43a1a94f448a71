package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
	"github.com/target/mmk-pipeline/internal/observability/metrics"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// JobDispatcherOptions groups dependencies for JobDispatcher.
type JobDispatcherOptions struct {
	Jobs       core.JobRepository        // Required: job queue
	Agents     core.AgentRepository      // Required: job targets
	Worker     core.WorkerClient         // Optional: required only to run ai_task jobs
	Reconciler core.ReconcilerRepository // Optional: reconciles stale processing rows on start
	TickLock   core.TickLocker           // Optional: cross-instance tick lock
	Config     config.DispatcherConfig   // Required: dispatcher configuration
	Clock      func() time.Time          // Optional: defaults to time.Now
	Logger     *slog.Logger              // Optional: structured logger
	Metrics    statsd.Sink               // Optional: metrics sink (StatsD-compatible)
}

// TickSummary describes one pass over the pending queue.
type TickSummary struct {
	// Skipped is set when another tick was still running or another replica held the lock.
	Skipped bool

	Fetched   int
	Completed int
	Requeued  int
	Failed    int
}

// JobDispatcher polls the job queue and runs pending jobs one at a time.
//
// Ticks never overlap: a tick that outlives the poll interval causes the next one to be
// skipped. Stop only prevents future ticks; a job that is already running finishes.
type JobDispatcher struct {
	jobs       core.JobRepository
	agents     core.AgentRepository
	worker     core.WorkerClient
	reconciler core.ReconcilerRepository
	tickLock   core.TickLocker
	config     config.DispatcherConfig
	clock      func() time.Time
	logger     *slog.Logger
	metrics    statsd.Sink

	busy atomic.Bool

	mu      sync.Mutex
	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	running bool
}

// jobHandler runs a claimed job and returns its result.
type jobHandler func(ctx context.Context, job *model.Job, p model.JobPayload) (json.RawMessage, error)

// NewJobDispatcher constructs a new JobDispatcher.
func NewJobDispatcher(opts JobDispatcherOptions) (*JobDispatcher, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Agents == nil {
		return nil, errors.New("AgentRepository is required")
	}
	cfg := dispatcherDefaults(opts.Config)

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobDispatcher{
		jobs:       opts.Jobs,
		agents:     opts.Agents,
		worker:     opts.Worker,
		reconciler: opts.Reconciler,
		tickLock:   opts.TickLock,
		config:     cfg,
		clock:      clock,
		logger:     logger.With("component", "job_dispatcher"),
		metrics:    opts.Metrics,
	}, nil
}

// outcomeWriteTimeout bounds the store call that records how a run ended.
const outcomeWriteTimeout = 10 * time.Second

func dispatcherDefaults(cfg config.DispatcherConfig) config.DispatcherConfig {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if cfg.TickLockTTL <= 0 {
		cfg.TickLockTTL = time.Minute
	}
	return cfg
}

// Start begins ticking every PollInterval. Calling Start on a running dispatcher logs
// a warning and does nothing.
func (d *JobDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.logger.WarnContext(ctx, "dispatcher already running")
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})

	d.loopWG.Add(1)
	go d.loop(ctx, d.stopCh)

	d.logger.InfoContext(ctx, "dispatcher started",
		"poll_interval", d.config.PollInterval,
		"batch_size", d.config.BatchSize,
	)
}

// Stop prevents future ticks. It is safe to call on a stopped dispatcher.
func (d *JobDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	close(d.stopCh)
	d.running = false
	d.logger.Info("dispatcher stopped")
}

// Running reports whether the tick loop is active.
func (d *JobDispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Wait blocks until the tick loop has exited and any tick in progress has finished.
func (d *JobDispatcher) Wait() {
	d.loopWG.Wait()
}

// Run starts the dispatcher and blocks until ctx is done, then stops it and waits
// for the current tick. Returns nil on graceful shutdown.
func (d *JobDispatcher) Run(ctx context.Context) error {
	d.Start(ctx)
	<-ctx.Done()
	d.Stop()
	d.Wait()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (d *JobDispatcher) loop(ctx context.Context, stop <-chan struct{}) {
	defer d.loopWG.Done()

	d.reconcileOnStart(ctx)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.loopExited(ctx, stop)
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := d.Tick(ctx); err != nil && !isContextCancellation(err) {
				d.logger.ErrorContext(ctx, "dispatcher tick failed", "error", err)
			}
		}
	}
}

// loopExited clears running when the loop ends because its context did, so a later
// Start can begin a new loop.
func (d *JobDispatcher) loopExited(ctx context.Context, stop <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.stopCh != stop {
		return
	}
	d.running = false
	d.logger.InfoContext(ctx, "dispatcher stopped", "reason", ctx.Err())
}

// reconcileOnStart recovers rows left in processing by a dispatcher that crashed.
func (d *JobDispatcher) reconcileOnStart(ctx context.Context) {
	if d.reconciler == nil {
		return
	}
	counts, err := d.reconciler.ReconcileProcessing(ctx, core.ReconcileParams{
		StaleAfter: d.config.ProcessingTimeout,
		BatchSize:  d.config.BatchSize,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "startup reconcile failed", "error", err)
		return
	}
	if counts.Requeued > 0 || counts.Failed > 0 {
		d.logger.InfoContext(ctx, "startup reconcile recovered jobs",
			"requeued", counts.Requeued,
			"failed", counts.Failed,
		)
	}
}

// Tick processes one batch of pending jobs in priority DESC, created_at ASC order.
// A failed batch fetch is returned and retried on the next tick; per-job failures are
// recorded on the job and never abort the batch.
func (d *JobDispatcher) Tick(ctx context.Context) (TickSummary, error) {
	if !d.busy.CompareAndSwap(false, true) {
		d.emitTick("overlap")
		return TickSummary{Skipped: true}, nil
	}
	defer d.busy.Store(false)

	if d.tickLock != nil {
		release, ok, err := d.tickLock.TryLock(ctx, d.config.TickLockTTL)
		switch {
		case err != nil:
			// Claims are conditional, so running without the lock cannot double-run a job.
			d.logger.WarnContext(ctx, "tick lock unavailable, continuing without it", "error", err)
		case !ok:
			d.emitTick("locked")
			return TickSummary{Skipped: true}, nil
		default:
			defer func() {
				if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
					d.logger.WarnContext(ctx, "release tick lock", "error", relErr)
				}
			}()
		}
	}

	start := time.Now()
	pending, err := d.jobs.ListPending(ctx, d.config.BatchSize)
	if err != nil {
		d.emitTick(metrics.ResultError)
		return TickSummary{}, fmt.Errorf("fetch pending jobs: %w", err)
	}

	summary := TickSummary{Fetched: len(pending)}
	for _, job := range pending {
		if ctx.Err() != nil {
			break
		}
		switch d.processJob(ctx, job) {
		case model.JobStatusCompleted:
			summary.Completed++
		case model.JobStatusPending:
			summary.Requeued++
		case model.JobStatusFailed:
			summary.Failed++
		}
	}

	if summary.Fetched > 0 {
		d.logger.DebugContext(ctx, "dispatcher tick finished",
			"fetched", summary.Fetched,
			"completed", summary.Completed,
			"requeued", summary.Requeued,
			"failed", summary.Failed,
			"elapsed", time.Since(start),
		)
	}
	d.emitTick(metrics.ResultFor(int64(summary.Fetched), nil))
	if d.metrics != nil {
		d.metrics.Timing("dispatcher.tick_duration", time.Since(start), nil)
	}
	return summary, nil
}

// processJob runs one job and returns the status it ended in, or "" when the job was
// left alone (claimed elsewhere or a store error).
func (d *JobDispatcher) processJob(ctx context.Context, job *model.Job) model.JobStatus {
	logger := d.logger.With("job_id", job.ID, "task_type", job.TaskType, "target", job.Target)

	if job.Attempts >= job.MaxRetries {
		msg := fmt.Sprintf("retry limit reached (%d/%d attempts)", job.Attempts, job.MaxRetries)
		if _, err := d.jobs.Fail(ctx, core.FailJobParams{ID: job.ID, Message: msg}); err != nil {
			logger.WarnContext(ctx, "fail exhausted job", "error", err)
			return ""
		}
		logger.InfoContext(ctx, "job failed without running", "attempts", job.Attempts)
		d.emitJob(job, metrics.TransitionExhausted, metrics.ResultError, 0, errors.New(msg))
		return model.JobStatusFailed
	}

	claimed, err := d.jobs.Claim(ctx, job.ID)
	if err != nil {
		if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
			logger.DebugContext(ctx, "job no longer claimable", "error", err)
		} else {
			logger.WarnContext(ctx, "claim job", "error", err)
		}
		return ""
	}

	// A job that has started runs to completion even if the dispatcher is shutting down.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.ProcessingTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := d.run(runCtx, claimed)
	elapsed := time.Since(start)

	// The run may have used up runCtx; the outcome is written on a context of its own.
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancelRecord()

	if runErr == nil {
		if _, err := d.jobs.Complete(recordCtx, core.CompleteJobParams{ID: claimed.ID, Result: result}); err != nil {
			logger.ErrorContext(ctx, "record job completion", "error", err)
			return ""
		}
		d.emitJob(claimed, metrics.TransitionCompleted, metrics.ResultSuccess, elapsed, nil)
		return model.JobStatusCompleted
	}

	params := core.FailJobParams{ID: claimed.ID, Message: runErr.Error()}
	if claimed.Attempts < claimed.MaxRetries {
		if _, err := d.jobs.Requeue(recordCtx, params); err != nil {
			logger.ErrorContext(ctx, "requeue job", "error", err)
			return ""
		}
		logger.WarnContext(ctx, "job failed, will retry",
			"attempts", claimed.Attempts,
			"max_retries", claimed.MaxRetries,
			"error", runErr,
		)
		d.emitJob(claimed, metrics.TransitionRequeued, metrics.ResultError, elapsed, runErr)
		return model.JobStatusPending
	}

	if _, err := d.jobs.Fail(recordCtx, params); err != nil {
		logger.ErrorContext(ctx, "record job failure", "error", err)
		return ""
	}
	logger.ErrorContext(ctx, "job failed permanently",
		"attempts", claimed.Attempts,
		"error", runErr,
	)
	d.emitJob(claimed, metrics.TransitionFailed, metrics.ResultError, elapsed, runErr)
	return model.JobStatusFailed
}

func (d *JobDispatcher) run(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	p, err := job.DecodePayload()
	if err != nil {
		return nil, err
	}
	return d.handlerFor(job.TaskType)(ctx, job, p)
}

func (d *JobDispatcher) handlerFor(t model.JobTaskType) jobHandler {
	switch t {
	case model.JobTaskAI:
		return d.handleAITask
	case model.JobTaskDataProcessing:
		return d.handleDataProcessing
	case model.JobTaskInterAgentMessage:
		return d.handleInterAgentMessage
	case model.JobTaskGeneric:
		return d.handleGeneric
	default:
		return d.handleGeneric
	}
}

// handleAITask posts {target, ...data} to the worker; the worker's response becomes the result.
func (d *JobDispatcher) handleAITask(ctx context.Context, job *model.Job, p model.JobPayload) (json.RawMessage, error) {
	if d.worker == nil {
		return nil, errors.New("ai worker is not configured")
	}
	taskType := strings.TrimSpace(p.TaskType)
	if taskType == "" {
		return nil, errors.New("ai_task payload requires taskType")
	}

	body := map[string]any{}
	if len(p.Data) > 0 && string(p.Data) != "null" {
		if err := json.Unmarshal(p.Data, &body); err != nil {
			return nil, fmt.Errorf("ai_task data must be an object: %w", err)
		}
	}
	body["target"] = job.Target

	return d.worker.RunTask(ctx, core.WorkerTaskRequest{TaskType: taskType, Body: body})
}

// handleDataProcessing merges the payload data and a timestamp into the target's state.
func (d *JobDispatcher) handleDataProcessing(
	ctx context.Context,
	job *model.Job,
	p model.JobPayload,
) (json.RawMessage, error) {
	patch := map[string]any{}
	if len(p.Data) > 0 && string(p.Data) != "null" {
		var data any
		if err := json.Unmarshal(p.Data, &data); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		if obj, ok := data.(map[string]any); ok {
			patch = obj
		} else {
			patch["data"] = data
		}
	}
	patch["lastProcessedAt"] = d.clock().UTC().Format(time.RFC3339Nano)
	patch["lastProcessedJob"] = job.ID

	if err := d.agents.MergeState(ctx, job.Target, patch); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"processed":true}`), nil
}

// handleInterAgentMessage appends the message to the target's inbox and, when asked,
// enqueues a reply job addressed back to the sender.
func (d *JobDispatcher) handleInterAgentMessage(
	ctx context.Context,
	job *model.Job,
	p model.JobPayload,
) (json.RawMessage, error) {
	from := strings.TrimSpace(p.From)
	if p.RequiresResponse && from == "" {
		return nil, errors.New("message requires a response but has no sender")
	}
	msgType := strings.TrimSpace(p.MessageType)
	if msgType == "" {
		msgType = "message"
	}

	if err := d.agents.AppendMessage(ctx, job.Target, model.AgentMessage{
		From:      from,
		Message:   p.Message,
		Type:      msgType,
		Timestamp: d.clock().UTC(),
	}); err != nil {
		return nil, err
	}

	out := map[string]any{"delivered": true}
	if p.RequiresResponse {
		reply, err := d.enqueueReply(ctx, job, from)
		if err != nil {
			return nil, err
		}
		out["replyJobId"] = reply.ID
	}
	return json.Marshal(out)
}

func (d *JobDispatcher) enqueueReply(ctx context.Context, job *model.Job, to string) (*model.Job, error) {
	payload, err := json.Marshal(model.JobPayload{
		Type:             model.JobTaskInterAgentMessage,
		From:             job.Target,
		Message:          json.RawMessage(`{"status":"received"}`),
		MessageType:      "response",
		RequiresResponse: false,
		InReplyTo:        job.ID,
	})
	if err != nil {
		return nil, err
	}
	reply, err := d.jobs.Create(ctx, &model.CreateJobRequest{
		Target:        to,
		TaskType:      model.JobTaskInterAgentMessage,
		Payload:       payload,
		Priority:      job.Priority,
		CorrelationID: job.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue reply: %w", err)
	}
	return reply, nil
}

// handleGeneric records a last-task marker on the target.
func (d *JobDispatcher) handleGeneric(ctx context.Context, job *model.Job, _ model.JobPayload) (json.RawMessage, error) {
	patch := map[string]any{
		"lastTask": map[string]any{
			"jobId":       job.ID,
			"taskType":    string(job.TaskType),
			"completedAt": d.clock().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := d.agents.MergeState(ctx, job.Target, patch); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"completed":true}`), nil
}

func (d *JobDispatcher) emitJob(job *model.Job, transition, result string, elapsed time.Duration, err error) {
	metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
		TaskType:   string(job.TaskType),
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})
}

func (d *JobDispatcher) emitTick(result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Count("dispatcher.tick", 1, map[string]string{"result": result})
}
