package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

var _ core.AgentRepository = (*AgentRepo)(nil)

// AgentRepo is an in-memory agent store.
type AgentRepo struct {
	mu     sync.Mutex
	agents map[string]*agentRecord

	// MergeStateCalls and AppendMessageCalls count handler side effects.
	MergeStateCalls    int
	AppendMessageCalls int
}

type agentRecord struct {
	state    map[string]any
	messages []model.AgentMessage
}

// NewAgentRepo returns a store with the named agents registered.
func NewAgentRepo(names ...string) *AgentRepo {
	r := &AgentRepo{agents: make(map[string]*agentRecord)}
	for _, n := range names {
		r.Register(n)
	}
	return r
}

// Register adds an agent with empty state.
func (r *AgentRepo) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		r.agents[name] = &agentRecord{state: map[string]any{}}
	}
}

// Get returns the agent with its state encoded as JSON.
func (r *AgentRepo) Get(_ context.Context, name string) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return nil, data.ErrAgentNotFound
	}
	state, err := json.Marshal(rec.state)
	if err != nil {
		return nil, err
	}
	return &model.Agent{
		Name:     name,
		State:    state,
		Messages: append([]model.AgentMessage(nil), rec.messages...),
	}, nil
}

// State returns a copy of the agent's state, or nil when unknown.
func (r *AgentRepo) State(name string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(rec.state))
	for k, v := range rec.state {
		out[k] = v
	}
	return out
}

// MergeState shallow-merges patch into the agent's state.
func (r *AgentRepo) MergeState(_ context.Context, name string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MergeStateCalls++
	rec, ok := r.agents[name]
	if !ok {
		return data.ErrAgentNotFound
	}
	for k, v := range patch {
		rec.state[k] = v
	}
	return nil
}

// AppendMessage adds msg to the agent's inbox.
func (r *AgentRepo) AppendMessage(_ context.Context, name string, msg model.AgentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AppendMessageCalls++
	rec, ok := r.agents[name]
	if !ok {
		return data.ErrAgentNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	rec.messages = append(rec.messages, msg)
	return nil
}
