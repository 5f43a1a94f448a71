package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineStage_Index(t *testing.T) {
	for i, s := range OrderedStages() {
		assert.Equal(t, i, s.Index(), s)
		assert.False(t, s.IsAlternative())
	}
	assert.Equal(t, -1, StageNotNow.Index())
	assert.Equal(t, -1, StageLongTermNurture.Index())
	assert.Equal(t, -1, PipelineStage("LOST").Index())
}

func TestPipelineStage_Valid(t *testing.T) {
	assert.True(t, StageClosedWon.Valid())
	assert.True(t, StageNotNow.Valid())
	assert.False(t, PipelineStage("").Valid())
	assert.False(t, PipelineStage("new_lead").Valid())
}

func TestPipelineStage_UnmarshalText(t *testing.T) {
	var s PipelineStage
	require.NoError(t, s.UnmarshalText([]byte("warming_up")))
	assert.Equal(t, StageWarmingUp, s)
	assert.Error(t, s.UnmarshalText([]byte("somewhere")))
}

func TestOrderedStages_ReturnsCopy(t *testing.T) {
	stages := OrderedStages()
	stages[0] = StageClosedWon
	assert.Equal(t, StageNewLead, OrderedStages()[0])
}

func TestCreateReminderRequest_Validate(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		req     CreateReminderRequest
		wantErr bool
	}{
		{name: "valid", req: CreateReminderRequest{CustomerID: "c1", Type: ReminderFollowUp, ScheduledFor: now}},
		{name: "missing customer", req: CreateReminderRequest{Type: ReminderFollowUp, ScheduledFor: now}, wantErr: true},
		{name: "bad type", req: CreateReminderRequest{CustomerID: "c1", Type: "LATER", ScheduledFor: now}, wantErr: true},
		{name: "zero time", req: CreateReminderRequest{CustomerID: "c1", Type: ReminderFollowUp2H}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateReminderRequest_IsEmpty(t *testing.T) {
	assert.True(t, (&UpdateReminderRequest{}).IsEmpty())
	msg := "call back"
	assert.False(t, (&UpdateReminderRequest{Message: &msg}).IsEmpty())

	bad := ReminderType("NEVER")
	assert.Error(t, (&UpdateReminderRequest{Type: &bad}).Validate())
}
