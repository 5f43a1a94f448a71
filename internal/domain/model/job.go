package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobTaskType selects the handler a job is routed to.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobTaskType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTaskAI delegates the job to the external AI worker.
	JobTaskAI JobTaskType = "ai_task"
	// JobTaskDataProcessing merges the payload into the target's state.
	JobTaskDataProcessing JobTaskType = "data_processing"
	// JobTaskInterAgentMessage appends a message to the target's inbox.
	JobTaskInterAgentMessage JobTaskType = "inter_agent_message"
	// JobTaskGeneric records a last-task marker on the target.
	JobTaskGeneric JobTaskType = "generic"

	// JobStatusPending indicates a job is waiting to be picked up.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being processed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has exhausted its retries.
	JobStatusFailed JobStatus = "failed"
)

// DefaultMaxRetries is used when neither the request nor the dispatcher sets a limit.
const DefaultMaxRetries = 3

// UnmarshalText implements encoding.TextUnmarshaler for JobTaskType.
func (t *JobTaskType) UnmarshalText(text []byte) error {
	v := JobTaskType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobTaskType: %q", string(text))
	}
	*t = v
	return nil
}

// Valid returns true if the JobTaskType is valid.
func (t JobTaskType) Valid() bool {
	return t == JobTaskAI || t == JobTaskDataProcessing || t == JobTaskInterAgentMessage || t == JobTaskGeneric
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a unit of asynchronous work addressed to a target.
type Job struct {
	ID            string          `json:"id"                       db:"id"`
	Target        string          `json:"target"                   db:"target"`
	TaskType      JobTaskType     `json:"task_type"                db:"task_type"`
	Payload       json.RawMessage `json:"payload"                  db:"payload"`
	Priority      int             `json:"priority"                 db:"priority"`
	CorrelationID *string         `json:"correlation_id,omitempty" db:"correlation_id"`
	Status        JobStatus       `json:"status"                   db:"status"`
	Attempts      int             `json:"attempts"                 db:"attempts"`
	MaxRetries    int             `json:"max_retries"              db:"max_retries"`
	Result        json.RawMessage `json:"result,omitempty"         db:"result"`
	StartedAt     *time.Time      `json:"started_at,omitempty"     db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"   db:"completed_at"`
	CreatedAt     time.Time       `json:"created_at"               db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"               db:"updated_at"`
}

// JobPayload is the structured view of Job.Payload used by the handlers.
// Unknown fields are ignored.
type JobPayload struct {
	Type             JobTaskType     `json:"type,omitempty"`
	TaskType         string          `json:"taskType,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	From             string          `json:"from,omitempty"`
	Message          json.RawMessage `json:"message,omitempty"`
	MessageType      string          `json:"messageType,omitempty"`
	RequiresResponse bool            `json:"requiresResponse,omitempty"`
	InReplyTo        string          `json:"inReplyTo,omitempty"`
}

// DecodePayload parses the job payload. An empty payload decodes to the zero value.
func (j *Job) DecodePayload() (JobPayload, error) {
	var p JobPayload
	if len(j.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("decode job payload: %w", err)
	}
	return p, nil
}

// CreateJobRequest represents a request to enqueue a job.
type CreateJobRequest struct {
	Target        string          `json:"target"`
	TaskType      JobTaskType     `json:"task_type,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Priority      int             `json:"priority,omitempty"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	MaxRetries    int             `json:"max_retries,omitempty"`
}

// ResolveTaskType fills TaskType from payload.type when unset, defaulting to generic.
// Unknown payload types also route to generic.
func (r *CreateJobRequest) ResolveTaskType() {
	if r.TaskType != "" {
		return
	}
	r.TaskType = JobTaskGeneric
	if len(r.Payload) == 0 {
		return
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(r.Payload, &probe); err != nil {
		return
	}
	if t := JobTaskType(strings.ToLower(strings.TrimSpace(probe.Type))); t.Valid() {
		r.TaskType = t
	}
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return errors.New("target is required")
	}
	if !r.TaskType.Valid() {
		return fmt.Errorf("invalid task type: %q", r.TaskType)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// AgentMessage is an entry in a target's message list.
type AgentMessage struct {
	From      string          `json:"from"`
	Message   json.RawMessage `json:"message"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// Agent is a job target: a named worker with a mutable state blob and an inbox.
type Agent struct {
	Name      string          `json:"name"       db:"name"`
	State     json.RawMessage `json:"state"      db:"state"`
	Messages  []AgentMessage  `json:"messages"   db:"messages"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
