package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-pipeline/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building job requests in tests.
type JobRequestBuilder struct {
	request *model.CreateJobRequest
}

// NewJobRequest creates a new job request builder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		request: &model.CreateJobRequest{
			Target:   "agent-a",
			TaskType: model.JobTaskGeneric,
			Payload:  json.RawMessage(`{}`),
		},
	}
}

// WithTarget sets the job target.
func (b *JobRequestBuilder) WithTarget(target string) *JobRequestBuilder {
	b.request.Target = target
	return b
}

// WithTaskType sets the task type.
func (b *JobRequestBuilder) WithTaskType(taskType model.JobTaskType) *JobRequestBuilder {
	b.request.TaskType = taskType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.request.Priority = priority
	return b
}

// WithPayloadString sets the job payload from a JSON string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.request.Payload = json.RawMessage(payload)
	return b
}

// WithCorrelationID sets the correlation id.
func (b *JobRequestBuilder) WithCorrelationID(id string) *JobRequestBuilder {
	b.request.CorrelationID = &id
	return b
}

// WithMaxRetries sets the maximum number of attempts.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.request.MaxRetries = maxRetries
	return b
}

// Build returns the constructed job request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.request
}

// ReminderRequest returns a FOLLOW_UP reminder request for customerID at scheduledFor.
func ReminderRequest(customerID string, scheduledFor time.Time) *model.CreateReminderRequest {
	return &model.CreateReminderRequest{
		CustomerID:   customerID,
		Type:         model.ReminderFollowUp,
		Message:      "Follow up",
		ScheduledFor: scheduledFor,
	}
}
