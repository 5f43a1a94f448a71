package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminder_FrozenAgainst(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	later := at.Add(72 * time.Hour)
	yes, no := true, false
	msg := "note"

	tests := []struct {
		name      string
		completed bool
		req       UpdateReminderRequest
		want      bool
	}{
		{name: "open reminder moves freely", req: UpdateReminderRequest{ScheduledFor: &later}},
		{name: "open reminder can be completed", req: UpdateReminderRequest{Completed: &yes}},
		{name: "completed reminder cannot reopen", completed: true, req: UpdateReminderRequest{Completed: &no}, want: true},
		{name: "completed reminder cannot move", completed: true, req: UpdateReminderRequest{ScheduledFor: &later}, want: true},
		{name: "completed reminder keeps same schedule", completed: true, req: UpdateReminderRequest{ScheduledFor: &at}},
		{name: "completed reminder accepts text edits", completed: true, req: UpdateReminderRequest{Message: &msg}},
		{name: "completing twice is fine", completed: true, req: UpdateReminderRequest{Completed: &yes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reminder{ScheduledFor: at, Completed: tt.completed}
			assert.Equal(t, tt.want, r.FrozenAgainst(&tt.req))
		})
	}
}
