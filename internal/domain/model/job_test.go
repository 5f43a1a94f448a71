package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTaskType_Valid(t *testing.T) {
	assert.True(t, JobTaskAI.Valid())
	assert.True(t, JobTaskDataProcessing.Valid())
	assert.True(t, JobTaskInterAgentMessage.Valid())
	assert.True(t, JobTaskGeneric.Valid())
	assert.False(t, JobTaskType("browser").Valid())
}

func TestJobTaskType_UnmarshalText(t *testing.T) {
	var tt JobTaskType
	require.NoError(t, tt.UnmarshalText([]byte(" AI_TASK ")))
	assert.Equal(t, JobTaskAI, tt)

	assert.Error(t, tt.UnmarshalText([]byte("nope")))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestCreateJobRequest_ResolveTaskType(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateJobRequest
		expected JobTaskType
	}{
		{
			name:     "explicit task type wins",
			req:      CreateJobRequest{TaskType: JobTaskAI, Payload: json.RawMessage(`{"type":"generic"}`)},
			expected: JobTaskAI,
		},
		{
			name:     "taken from payload type",
			req:      CreateJobRequest{Payload: json.RawMessage(`{"type":"inter_agent_message"}`)},
			expected: JobTaskInterAgentMessage,
		},
		{
			name:     "unknown payload type routes to generic",
			req:      CreateJobRequest{Payload: json.RawMessage(`{"type":"something_else"}`)},
			expected: JobTaskGeneric,
		},
		{
			name:     "empty payload defaults to generic",
			req:      CreateJobRequest{},
			expected: JobTaskGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.ResolveTaskType()
			assert.Equal(t, tt.expected, req.TaskType)
		})
	}
}

func TestCreateJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  CreateJobRequest{Target: "agent-a", TaskType: JobTaskGeneric, Payload: json.RawMessage(`{}`)},
		},
		{
			name:    "missing target",
			req:     CreateJobRequest{TaskType: JobTaskGeneric},
			wantErr: "target is required",
		},
		{
			name:    "invalid task type",
			req:     CreateJobRequest{Target: "agent-a", TaskType: "bogus"},
			wantErr: "invalid task type",
		},
		{
			name:    "invalid json payload",
			req:     CreateJobRequest{Target: "agent-a", TaskType: JobTaskGeneric, Payload: json.RawMessage(`{`)},
			wantErr: "payload must be valid JSON",
		},
		{
			name:    "negative retries",
			req:     CreateJobRequest{Target: "agent-a", TaskType: JobTaskGeneric, MaxRetries: -1},
			wantErr: "max retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJob_DecodePayload(t *testing.T) {
	job := &Job{Payload: json.RawMessage(`{"taskType":"summarize","data":{"k":"v"},"requiresResponse":true,"from":"b"}`)}
	p, err := job.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, "summarize", p.TaskType)
	assert.JSONEq(t, `{"k":"v"}`, string(p.Data))
	assert.True(t, p.RequiresResponse)
	assert.Equal(t, "b", p.From)

	empty := &Job{}
	p, err = empty.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, JobPayload{}, p)

	bad := &Job{Payload: json.RawMessage(`[1,2`)}
	_, err = bad.DecodePayload()
	assert.Error(t, err)
}
