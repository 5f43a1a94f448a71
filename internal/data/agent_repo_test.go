package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/testutil"
)

func TestAgentRepo_Integration_StateAndMessages(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewAgentRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(testutil.TestTime())})

		_, err := repo.Register(ctx, "agent-a")
		require.NoError(t, err)

		require.NoError(t, repo.MergeState(ctx, "agent-a", map[string]any{"a": 1, "b": "x"}))
		require.NoError(t, repo.MergeState(ctx, "agent-a", map[string]any{"b": "y"}))

		require.NoError(t, repo.AppendMessage(ctx, "agent-a", model.AgentMessage{
			From:    "agent-b",
			Message: json.RawMessage(`"hello"`),
			Type:    "request",
		}))

		agent, err := repo.Get(ctx, "agent-a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1,"b":"y"}`, string(agent.State))
		require.Len(t, agent.Messages, 1)
		assert.Equal(t, "agent-b", agent.Messages[0].From)
		assert.Equal(t, testutil.TestTime(), agent.Messages[0].Timestamp.UTC())

		require.ErrorIs(t, repo.MergeState(ctx, "ghost", map[string]any{"a": 1}), ErrAgentNotFound)
		require.ErrorIs(t, repo.AppendMessage(ctx, "ghost", model.AgentMessage{}), ErrAgentNotFound)
		_, err = repo.Get(ctx, "ghost")
		require.ErrorIs(t, err, ErrAgentNotFound)
	})
}
