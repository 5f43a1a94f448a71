package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
)

// ReminderServiceOptions groups dependencies for ReminderService.
type ReminderServiceOptions struct {
	Repo   core.ReminderRepository // Required: reminder repository
	Clock  func() time.Time        // Optional: defaults to time.Now
	Logger *slog.Logger            // Optional: structured logger
}

// ReminderService schedules reminders and answers due queries.
type ReminderService struct {
	repo   core.ReminderRepository
	clock  func() time.Time
	logger *slog.Logger
}

// NewReminderService constructs a new ReminderService.
func NewReminderService(opts ReminderServiceOptions) (*ReminderService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReminderRepository is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderService{
		repo:   opts.Repo,
		clock:  clock,
		logger: logger.With("component", "reminder_service"),
	}, nil
}

// Create schedules a new incomplete reminder.
func (s *ReminderService) Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error) {
	if req == nil {
		return nil, apperrors.Validation("reminder request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid reminder")
	}
	rem, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, mapRepoError(err, "create reminder")
	}
	s.logger.DebugContext(ctx, "reminder scheduled",
		"reminder_id", rem.ID,
		"customer_id", rem.CustomerID,
		"type", rem.Type,
		"scheduled_for", rem.ScheduledFor,
	)
	return rem, nil
}

// Due returns incomplete reminders whose time has come.
func (s *ReminderService) Due(ctx context.Context) ([]*model.Reminder, error) {
	return s.DueAt(ctx, s.clock())
}

// DueAt returns incomplete reminders scheduled at or before now, oldest first.
func (s *ReminderService) DueAt(ctx context.Context, now time.Time) ([]*model.Reminder, error) {
	out, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return nil, mapRepoError(err, "list due reminders")
	}
	return out, nil
}

// MarkCompleted completes the reminder. It is idempotent and returns (nil, nil)
// when the reminder does not exist.
func (s *ReminderService) MarkCompleted(ctx context.Context, id string) (*model.Reminder, error) {
	rem, err := s.repo.MarkCompleted(ctx, strings.TrimSpace(id))
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapRepoError(err, "complete reminder")
	}
	return rem, nil
}

// Update applies a partial patch. A missing reminder is a not_found error and moving
// the schedule of a completed reminder is a conflict.
func (s *ReminderService) Update(
	ctx context.Context,
	id string,
	req *model.UpdateReminderRequest,
) (*model.Reminder, error) {
	if req == nil {
		return nil, apperrors.Validation("reminder patch is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid reminder patch")
	}
	rem, err := s.repo.Update(ctx, strings.TrimSpace(id), req)
	if err != nil {
		return nil, mapRepoError(err, "update reminder")
	}
	return rem, nil
}

// Delete removes the reminder and reports whether it existed.
func (s *ReminderService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Delete(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, mapRepoError(err, "delete reminder")
	}
	return ok, nil
}

// ListByCustomer returns every reminder of the customer in ascending scheduled_for order.
func (s *ReminderService) ListByCustomer(ctx context.Context, customerID string) ([]*model.Reminder, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, apperrors.ValidationField("customer_id", "customer id is required")
	}
	out, err := s.repo.ListByCustomer(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return nil, mapRepoError(err, "list customer reminders")
	}
	return out, nil
}

// mapRepoError keeps AppErrors as they are, maps postgres errors, and wraps the rest as internal.
func mapRepoError(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperrors.GetCode(err) != "" {
		return err
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.GetCode(mapped) != "" {
		return mapped
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, op)
}
