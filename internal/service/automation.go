package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/mmk-pipeline/internal/domain/model"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// ReminderCreator schedules reminders. ReminderService satisfies it.
type ReminderCreator interface {
	Create(ctx context.Context, req *model.CreateReminderRequest) (*model.Reminder, error)
}

// CustomerLookup loads a customer by id.
type CustomerLookup interface {
	GetByID(ctx context.Context, id string) (*model.Customer, error)
}

// TriggerStatus reports what HandleEvent did.
type TriggerStatus string

const (
	// TriggerDelivered means every reminder of the rule was created.
	TriggerDelivered TriggerStatus = "delivered"
	// TriggerSkipped means there was nothing to do: no rule, or no such customer.
	TriggerSkipped TriggerStatus = "skipped"
	// TriggerFailed means reminders were attempted and at least one could not be created.
	TriggerFailed TriggerStatus = "failed"
)

// TriggerOutcome is the best-effort result of an automation trigger.
type TriggerOutcome struct {
	Status    TriggerStatus     `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Reminders []*model.Reminder `json:"reminders,omitempty"`
	Err       error             `json:"-"`
}

// reminderRule is one reminder created by an event, offset from the time the event is handled.
type reminderRule struct {
	Type    model.ReminderType
	Offset  time.Duration
	Message string
}

// automationRules is the closed event → reminders table.
var automationRules = map[model.EventName][]reminderRule{
	model.EventVideoSent: {
		{Type: model.ReminderFollowUp24H, Offset: 24 * time.Hour, Message: "Follow up on the video sent yesterday"},
		{Type: model.ReminderFollowUp48H, Offset: 48 * time.Hour, Message: "Second follow-up on the video"},
	},
	model.EventNoShow: {
		{Type: model.ReminderFollowUp2H, Offset: 2 * time.Hour, Message: "Reach out after the missed meeting"},
		{Type: model.ReminderFollowUp1D, Offset: 24 * time.Hour, Message: "Reschedule the missed meeting"},
	},
}

// AutomationServiceOptions groups dependencies for AutomationService.
type AutomationServiceOptions struct {
	Reminders ReminderCreator  // Required: reminder scheduler
	Customers CustomerLookup   // Optional: when set, events for unknown customers are skipped
	Clock     func() time.Time // Optional: defaults to time.Now
	Logger    *slog.Logger     // Optional: structured logger
	Metrics   statsd.Sink      // Optional: metrics sink
}

// AutomationService turns domain events into follow-up reminders.
type AutomationService struct {
	reminders ReminderCreator
	customers CustomerLookup
	clock     func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewAutomationService constructs a new AutomationService.
func NewAutomationService(opts AutomationServiceOptions) (*AutomationService, error) {
	if opts.Reminders == nil {
		return nil, errors.New("ReminderCreator is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AutomationService{
		reminders: opts.Reminders,
		customers: opts.Customers,
		clock:     clock,
		logger:    logger.With("component", "automation_service"),
		metrics:   opts.Metrics,
	}, nil
}

// HasRule reports whether the event name has an automation rule.
func HasRule(name model.EventName) bool {
	_, ok := automationRules[name]
	return ok
}

// HandleEvent creates the reminders mapped to the event. It never returns an error;
// failures are logged and reported in the outcome.
func (s *AutomationService) HandleEvent(ctx context.Context, ev model.Event) TriggerOutcome {
	out := s.handle(ctx, ev)
	s.emit(ev.Name, out)
	return out
}

func (s *AutomationService) handle(ctx context.Context, ev model.Event) TriggerOutcome {
	rules, ok := automationRules[ev.Name]
	if !ok {
		return TriggerOutcome{Status: TriggerSkipped, Reason: fmt.Sprintf("no automation for event %q", ev.Name)}
	}
	customerID := strings.TrimSpace(ev.CustomerID)
	if customerID == "" {
		return TriggerOutcome{Status: TriggerSkipped, Reason: "event has no customer"}
	}

	if s.customers != nil {
		if _, err := s.customers.GetByID(ctx, customerID); err != nil {
			if apperrors.IsNotFound(err) {
				return TriggerOutcome{Status: TriggerSkipped, Reason: "customer not found"}
			}
			s.logger.WarnContext(ctx, "automation customer lookup failed",
				"event", ev.Name, "customer_id", customerID, "error", err)
			return TriggerOutcome{Status: TriggerFailed, Reason: "customer lookup failed", Err: err}
		}
	}

	now := s.clock()
	created := make([]*model.Reminder, 0, len(rules))
	var errs []error
	for _, rule := range rules {
		rem, err := s.reminders.Create(ctx, &model.CreateReminderRequest{
			CustomerID:   customerID,
			Type:         rule.Type,
			Message:      rule.Message,
			ScheduledFor: now.Add(rule.Offset),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "automation reminder not created",
				"event", ev.Name, "customer_id", customerID, "type", rule.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", rule.Type, err))
			continue
		}
		created = append(created, rem)
	}

	if len(errs) > 0 {
		return TriggerOutcome{
			Status:    TriggerFailed,
			Reason:    "one or more reminders could not be created",
			Reminders: created,
			Err:       errors.Join(errs...),
		}
	}
	s.logger.InfoContext(ctx, "automation delivered",
		"event", ev.Name, "customer_id", customerID, "reminders", len(created))
	return TriggerOutcome{Status: TriggerDelivered, Reminders: created}
}

func (s *AutomationService) emit(name model.EventName, out TriggerOutcome) {
	if s.metrics == nil {
		return
	}
	event := string(name)
	if !name.Valid() {
		event = "unknown"
	}
	s.metrics.Count("automation.trigger", 1, map[string]string{
		"event":  event,
		"status": string(out.Status),
	})
}
