package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

var _ core.CustomerRepository = (*CustomerRepo)(nil)

// CustomerRepo is an in-memory customer store with a transition log.
type CustomerRepo struct {
	mu          sync.Mutex
	customers   map[string]*model.Customer
	transitions []*model.StageTransition

	// Now defaults to time.Now.
	Now func() time.Time
	// BeforeApply, when set, runs inside ApplyTransition before the stage check,
	// letting tests simulate a concurrent writer.
	BeforeApply func(c *model.Customer)
}

// NewCustomerRepo returns an empty store.
func NewCustomerRepo() *CustomerRepo {
	return &CustomerRepo{customers: make(map[string]*model.Customer)}
}

func (r *CustomerRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Seed adds a customer in the given stage and returns its id.
func (r *CustomerRepo) Seed(id string, stage model.PipelineStage, updatedAt time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	r.customers[id] = &model.Customer{
		ID:        id,
		Name:      "Customer " + id,
		Status:    stage,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	return id
}

// GetByID returns a copy of the customer.
func (r *CustomerRepo) GetByID(_ context.Context, id string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, data.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

// ApplyTransition changes the stage only if it still equals params.From.
func (r *CustomerRepo) ApplyTransition(_ context.Context, params core.TransitionParams) (*model.StageTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[params.CustomerID]
	if !ok {
		return nil, data.ErrCustomerNotFound
	}
	if r.BeforeApply != nil {
		r.BeforeApply(c)
	}
	if c.Status != params.From {
		return nil, data.ErrStageConflict
	}
	now := r.now()
	c.Status = params.To
	c.UpdatedAt = now
	tr := &model.StageTransition{
		ID:         uuid.NewString(),
		CustomerID: params.CustomerID,
		FromStage:  params.From,
		ToStage:    params.To,
		Notes:      params.Notes,
		CreatedAt:  now,
	}
	r.transitions = append(r.transitions, tr)
	cp := *tr
	return &cp, nil
}

// ListTransitions returns the customer's log in insertion order.
func (r *CustomerRepo) ListTransitions(_ context.Context, customerID string) ([]*model.StageTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.StageTransition, 0)
	for _, tr := range r.transitions {
		if tr.CustomerID == customerID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListStale returns customers in params.Stage untouched since params.Before, oldest first.
func (r *CustomerRepo) ListStale(_ context.Context, params core.ListStaleParams) ([]*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Customer
	for _, c := range r.customers {
		if c.Status == params.Stage && c.UpdatedAt.Before(params.Before) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	if params.BatchSize > 0 && len(out) > params.BatchSize {
		out = out[:params.BatchSize]
	}
	return out, nil
}

// Oracle answers qualification questions from a fixed table.
type Oracle struct {
	mu      sync.Mutex
	answers map[string]*model.Qualification

	// Err, when set, is returned for every customer.
	Err   error
	Calls int
}

// NewOracle returns an oracle with no answers; unknown customers are unqualified with score 0.
func NewOracle() *Oracle {
	return &Oracle{answers: make(map[string]*model.Qualification)}
}

// Set records the answer for a customer.
func (o *Oracle) Set(customerID string, q model.Qualification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers[customerID] = &q
}

// Evaluate returns the recorded answer.
func (o *Oracle) Evaluate(_ context.Context, customerID string) (*model.Qualification, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls++
	if o.Err != nil {
		return nil, o.Err
	}
	if q, ok := o.answers[customerID]; ok {
		cp := *q
		return &cp, nil
	}
	return &model.Qualification{Reason: "no qualification on record"}, nil
}
