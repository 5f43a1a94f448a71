package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-pipeline/internal/domain/model"
)

// AgentRepo stores job targets and their state blobs.
type AgentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAgentRepo creates a new AgentRepo instance.
func NewAgentRepo(db *sql.DB, cfg RepoConfig) *AgentRepo {
	return &AgentRepo{DB: db, timeProvider: resolveTimeProvider(cfg.TimeProvider)}
}

// Register creates the agent if it does not exist and returns it.
func (r *AgentRepo) Register(ctx context.Context, name string) (*model.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("agent name is required")
	}
	now := r.timeProvider.Now()
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO agents (name, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (name) DO NOTHING`, name, now); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return r.Get(ctx, name)
}

// Get returns the agent or ErrAgentNotFound.
func (r *AgentRepo) Get(ctx context.Context, name string) (*model.Agent, error) {
	var (
		agent    model.Agent
		state    []byte
		messages []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT name, state, messages, created_at, updated_at
		FROM agents WHERE name = $1`, name,
	).Scan(&agent.Name, &state, &messages, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}

	agent.State = cloneJSON(state)
	agent.Messages = []model.AgentMessage{}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &agent.Messages); err != nil {
			return nil, fmt.Errorf("decode agent messages: %w", err)
		}
	}
	return &agent, nil
}

// MergeState shallow-merges patch into the agent's state. Top-level keys in patch win.
func (r *AgentRepo) MergeState(ctx context.Context, name string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal state patch: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE agents
		SET state = state || $2::jsonb, updated_at = $3
		WHERE name = $1`, name, raw, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("merge agent state: %w", err)
	}
	return requireRow(res, ErrAgentNotFound)
}

// AppendMessage adds msg to the end of the agent's message list.
func (r *AgentRepo) AppendMessage(ctx context.Context, name string, msg model.AgentMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.timeProvider.Now()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal agent message: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE agents
		SET messages = messages || jsonb_build_array($2::jsonb), updated_at = $3
		WHERE name = $1`, name, raw, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("append agent message: %w", err)
	}
	return requireRow(res, ErrAgentNotFound)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
