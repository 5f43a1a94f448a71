package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

func TestPrintUsage_ListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "clear-tick-lock"), strings.Index(out, "retry-job"))
}

func TestParseListJobsFlags(t *testing.T) {
	opts, err := parseListJobsFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, opts.Status)
	assert.Equal(t, 50, opts.Limit)

	opts, err = parseListJobsFlags([]string{"-status", "pending", "-limit", "5"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, opts.Status)
	assert.Equal(t, 5, opts.Limit)

	_, err = parseListJobsFlags([]string{"-status", "stuck"})
	require.Error(t, err)
	_, err = parseListJobsFlags([]string{"-limit", "0"})
	require.Error(t, err)
}

func TestParseDueFlags(t *testing.T) {
	now := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

	opts, err := parseDueFlags(nil, now)
	require.NoError(t, err)
	assert.Equal(t, now, opts.At)

	opts, err = parseDueFlags([]string{"-at", "2026-06-11T09:00:00Z"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 11, 9, 0, 0, 0, time.UTC), opts.At)

	_, err = parseDueFlags([]string{"-at", "tomorrow"}, now)
	require.Error(t, err)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"})
	require.Error(t, err)
}

func TestRenderJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobs(&buf, nil))
	assert.Equal(t, "no jobs found\n", buf.String())

	buf.Reset()
	require.NoError(t, renderJobs(&buf, []*model.Job{{
		ID:         "job-1",
		Target:     "agent-a",
		TaskType:   model.JobTaskAI,
		Status:     model.JobStatusFailed,
		Attempts:   3,
		MaxRetries: 3,
		Result:     json.RawMessage(`{"error":"worker returned status 500"}`),
		UpdatedAt:  time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC),
	}}))
	out := buf.String()
	assert.Contains(t, out, "ATTEMPTS")
	assert.Contains(t, out, "3/3")
	assert.Contains(t, out, "2026-06-10T15:00:00Z")
	assert.Contains(t, out, "worker returned status 500")
}

func TestRenderReminders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReminders(&buf, nil))
	assert.Equal(t, "no reminders due\n", buf.String())

	buf.Reset()
	require.NoError(t, renderReminders(&buf, []*model.Reminder{{
		ID:           "r1",
		CustomerID:   "c1",
		Type:         model.ReminderFollowUp2H,
		Message:      strings.Repeat("x", 100),
		ScheduledFor: time.Date(2026, 6, 10, 17, 0, 0, 0, time.UTC),
	}}))
	assert.Contains(t, buf.String(), "FOLLOW_UP_2H")
	assert.Contains(t, buf.String(), "…")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "-", formatTimestamp(time.Time{}))
}
