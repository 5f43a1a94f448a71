package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/testutil"
)

func TestReminderRepo_Integration_DueAndComplete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := testutil.TestTime()
		repo := NewReminderRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		testutil.SeedCustomer(t, db, "c1", "NEW_LEAD")

		due, err := repo.Create(ctx, testutil.ReminderRequest("c1", now.Add(-time.Second)))
		require.NoError(t, err)
		assert.False(t, due.Completed)

		_, err = repo.Create(ctx, testutil.ReminderRequest("c1", now.Add(time.Hour)))
		require.NoError(t, err)

		list, err := repo.ListDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)

		done, err := repo.MarkCompleted(ctx, due.ID)
		require.NoError(t, err)
		assert.True(t, done.Completed)

		list, err = repo.ListDue(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, list)

		again, err := repo.MarkCompleted(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, done.ID, again.ID)
		assert.True(t, again.Completed)
		assert.Equal(t, done.UpdatedAt, again.UpdatedAt)

		_, err = repo.MarkCompleted(ctx, "9f0cbb7c-6a4e-4a43-9f0e-000000000000")
		require.ErrorIs(t, err, ErrReminderNotFound)
	})
}

func TestReminderRepo_Integration_UpdateAndDelete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewReminderRepo(db, RepoConfig{TimeProvider: tp})
		testutil.SeedCustomer(t, db, "c1", "NEW_LEAD")

		rem, err := repo.Create(ctx, testutil.ReminderRequest("c1", tp.Now().Add(time.Hour)))
		require.NoError(t, err)

		tp.AddTime(time.Minute)
		msg := "call back after lunch"
		updated, err := repo.Update(ctx, rem.ID, &model.UpdateReminderRequest{Message: &msg})
		require.NoError(t, err)
		assert.Equal(t, msg, updated.Message)
		assert.Equal(t, rem.ScheduledFor, updated.ScheduledFor)
		assert.True(t, updated.UpdatedAt.After(rem.UpdatedAt))

		_, err = repo.MarkCompleted(ctx, rem.ID)
		require.NoError(t, err)

		moved := rem.ScheduledFor.Add(24 * time.Hour)
		_, err = repo.Update(ctx, rem.ID, &model.UpdateReminderRequest{ScheduledFor: &moved})
		require.ErrorIs(t, err, ErrReminderLocked)

		reopen := false
		_, err = repo.Update(ctx, rem.ID, &model.UpdateReminderRequest{Completed: &reopen})
		require.ErrorIs(t, err, ErrReminderLocked)

		_, err = repo.Update(ctx, rem.ID, &model.UpdateReminderRequest{Completed: &reopen, ScheduledFor: &moved})
		require.ErrorIs(t, err, ErrReminderLocked)

		stored, err := repo.GetByID(ctx, rem.ID)
		require.NoError(t, err)
		assert.True(t, stored.Completed)
		assert.True(t, stored.ScheduledFor.Equal(rem.ScheduledFor))

		_, err = repo.Update(ctx, "not-a-uuid", &model.UpdateReminderRequest{Message: &msg})
		require.ErrorIs(t, err, ErrReminderNotFound)

		ok, err := repo.Delete(ctx, rem.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Delete(ctx, rem.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReminderRepo_Integration_ListByCustomerOrdered(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		now := testutil.TestTime()
		repo := NewReminderRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		testutil.SeedCustomer(t, db, "c1", "NEW_LEAD")
		testutil.SeedCustomer(t, db, "c2", "NEW_LEAD")

		for _, offset := range []time.Duration{48 * time.Hour, 2 * time.Hour, 24 * time.Hour} {
			_, err := repo.Create(ctx, testutil.ReminderRequest("c1", now.Add(offset)))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, testutil.ReminderRequest("c2", now))
		require.NoError(t, err)

		list, err := repo.ListByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, now.Add(2*time.Hour), list[0].ScheduledFor)
		assert.Equal(t, now.Add(24*time.Hour), list[1].ScheduledFor)
		assert.Equal(t, now.Add(48*time.Hour), list[2].ScheduledFor)

		open, err := repo.HasOpen(ctx, "c1", model.ReminderFollowUp)
		require.NoError(t, err)
		assert.True(t, open)

		open, err = repo.HasOpen(ctx, "c1", model.ReminderFollowUp7D)
		require.NoError(t, err)
		assert.False(t, open)
	})
}

func TestReminderRepo_Integration_DeleteCompletedBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewReminderRepo(db, RepoConfig{TimeProvider: tp})
		testutil.SeedCustomer(t, db, "c1", "NEW_LEAD")

		old, err := repo.Create(ctx, testutil.ReminderRequest("c1", tp.Now()))
		require.NoError(t, err)
		_, err = repo.MarkCompleted(ctx, old.ID)
		require.NoError(t, err)

		tp.AddTime(48 * time.Hour)
		open, err := repo.Create(ctx, testutil.ReminderRequest("c1", tp.Now()))
		require.NoError(t, err)

		n, err := repo.DeleteCompletedBefore(ctx, tp.Now().Add(-24*time.Hour), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByID(ctx, old.ID)
		require.ErrorIs(t, err, ErrReminderNotFound)
		_, err = repo.GetByID(ctx, open.ID)
		require.NoError(t, err)
	})
}
