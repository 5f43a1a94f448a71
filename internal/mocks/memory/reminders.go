package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/model"
)

var _ core.ReminderRepository = (*ReminderRepo)(nil)

// ReminderRepo is an in-memory reminder store.
type ReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*model.Reminder

	// Now defaults to time.Now.
	Now func() time.Time
	// CreateErr, when set, is returned by Create.
	CreateErr error
}

// NewReminderRepo returns an empty store.
func NewReminderRepo() *ReminderRepo {
	return &ReminderRepo{reminders: make(map[string]*model.Reminder)}
}

func (r *ReminderRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores an incomplete reminder.
func (r *ReminderRepo) Create(_ context.Context, req *model.CreateReminderRequest) (*model.Reminder, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	rem := &model.Reminder{
		ID:             uuid.NewString(),
		CustomerID:     req.CustomerID,
		Type:           req.Type,
		Message:        req.Message,
		ScheduledFor:   req.ScheduledFor.UTC(),
		RepeatInterval: req.RepeatInterval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.reminders[rem.ID] = rem
	c := *rem
	return &c, nil
}

// GetByID returns a copy of the reminder.
func (r *ReminderRepo) GetByID(_ context.Context, id string) (*model.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return nil, data.ErrReminderNotFound
	}
	c := *rem
	return &c, nil
}

// ListDue returns incomplete reminders scheduled at or before now.
func (r *ReminderRepo) ListDue(_ context.Context, now time.Time) ([]*model.Reminder, error) {
	return r.filter(func(rem *model.Reminder) bool {
		return !rem.Completed && !rem.ScheduledFor.After(now)
	}), nil
}

// ListByCustomer returns the customer's reminders ordered by scheduled_for.
func (r *ReminderRepo) ListByCustomer(_ context.Context, customerID string) ([]*model.Reminder, error) {
	return r.filter(func(rem *model.Reminder) bool { return rem.CustomerID == customerID }), nil
}

func (r *ReminderRepo) filter(keep func(*model.Reminder) bool) []*model.Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Reminder, 0)
	for _, rem := range r.reminders {
		if keep(rem) {
			c := *rem
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].ScheduledFor.Equal(out[k].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[k].ScheduledFor)
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// MarkCompleted completes the reminder; an already completed one is returned unchanged.
func (r *ReminderRepo) MarkCompleted(_ context.Context, id string) (*model.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return nil, data.ErrReminderNotFound
	}
	if !rem.Completed {
		rem.Completed = true
		rem.UpdatedAt = r.now()
	}
	c := *rem
	return &c, nil
}

// Update applies the patch with the same completed-reminder rule as the postgres store.
func (r *ReminderRepo) Update(_ context.Context, id string, req *model.UpdateReminderRequest) (*model.Reminder, error) {
	if req == nil {
		return nil, errors.New("update reminder request is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return nil, data.ErrReminderNotFound
	}
	if rem.FrozenAgainst(req) {
		return nil, data.ErrReminderLocked
	}
	if req.Type != nil {
		rem.Type = *req.Type
	}
	if req.Message != nil {
		rem.Message = *req.Message
	}
	if req.ScheduledFor != nil {
		rem.ScheduledFor = req.ScheduledFor.UTC()
	}
	if req.Completed != nil {
		rem.Completed = *req.Completed
	}
	if req.RepeatInterval != nil {
		v := *req.RepeatInterval
		rem.RepeatInterval = &v
	}
	rem.UpdatedAt = r.now()
	c := *rem
	return &c, nil
}

// Delete removes the reminder.
func (r *ReminderRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reminders[id]; !ok {
		return false, nil
	}
	delete(r.reminders, id)
	return true, nil
}

// HasOpen reports whether the customer has an incomplete reminder of the type.
func (r *ReminderRepo) HasOpen(_ context.Context, customerID string, t model.ReminderType) (bool, error) {
	found := r.filter(func(rem *model.Reminder) bool {
		return rem.CustomerID == customerID && rem.Type == t && !rem.Completed
	})
	return len(found) > 0, nil
}

// DeleteCompletedBefore removes completed reminders last updated before cutoff.
func (r *ReminderRepo) DeleteCompletedBefore(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rem := range r.reminders {
		if batchSize > 0 && n >= int64(batchSize) {
			break
		}
		if rem.Completed && rem.UpdatedAt.Before(cutoff) {
			delete(r.reminders, id)
			n++
		}
	}
	return n, nil
}
