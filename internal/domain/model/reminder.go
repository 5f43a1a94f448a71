package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReminderType classifies a reminder by the follow-up it represents.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ReminderType string

const (
	ReminderFollowUp2H  ReminderType = "FOLLOW_UP_2H"
	ReminderFollowUp24H ReminderType = "FOLLOW_UP_24H"
	ReminderFollowUp48H ReminderType = "FOLLOW_UP_48H"
	ReminderFollowUp1D  ReminderType = "FOLLOW_UP_1D"
	ReminderFollowUp7D  ReminderType = "FOLLOW_UP_7D"
	ReminderFollowUp    ReminderType = "FOLLOW_UP"
)

// Valid returns true if the ReminderType is known.
func (t ReminderType) Valid() bool {
	switch t {
	case ReminderFollowUp2H, ReminderFollowUp24H, ReminderFollowUp48H,
		ReminderFollowUp1D, ReminderFollowUp7D, ReminderFollowUp:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ReminderType) UnmarshalText(text []byte) error {
	v := ReminderType(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid ReminderType: %q", string(text))
	}
	*t = v
	return nil
}

// Reminder is a time-scheduled, completable note attached to a customer.
type Reminder struct {
	ID             string       `json:"id"                        db:"id"`
	CustomerID     string       `json:"customer_id"               db:"customer_id"`
	Type           ReminderType `json:"type"                      db:"type"`
	Message        string       `json:"message"                   db:"message"`
	ScheduledFor   time.Time    `json:"scheduled_for"             db:"scheduled_for"`
	Completed      bool         `json:"completed"                 db:"completed"`
	RepeatInterval *string      `json:"repeat_interval,omitempty" db:"repeat_interval"`
	CreatedAt      time.Time    `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"                db:"updated_at"`
}

// CreateReminderRequest carries the fields needed to schedule a reminder.
type CreateReminderRequest struct {
	CustomerID     string       `json:"customer_id"`
	Type           ReminderType `json:"type"`
	Message        string       `json:"message"`
	ScheduledFor   time.Time    `json:"scheduled_for"`
	RepeatInterval *string      `json:"repeat_interval,omitempty"`
}

// Validate validates the CreateReminderRequest fields.
func (r *CreateReminderRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid reminder type: %q", r.Type)
	}
	if r.ScheduledFor.IsZero() {
		return errors.New("scheduled_for is required")
	}
	return nil
}

// UpdateReminderRequest is a partial patch; nil fields are left untouched.
type UpdateReminderRequest struct {
	Type           *ReminderType `json:"type,omitempty"`
	Message        *string       `json:"message,omitempty"`
	ScheduledFor   *time.Time    `json:"scheduled_for,omitempty"`
	Completed      *bool         `json:"completed,omitempty"`
	RepeatInterval *string       `json:"repeat_interval,omitempty"`
}

// Validate validates the fields present in the patch.
func (r *UpdateReminderRequest) Validate() error {
	if r.Type != nil && !r.Type.Valid() {
		return fmt.Errorf("invalid reminder type: %q", *r.Type)
	}
	if r.ScheduledFor != nil && r.ScheduledFor.IsZero() {
		return errors.New("scheduled_for cannot be zero")
	}
	return nil
}

// FrozenAgainst reports whether req would reopen r or move its schedule. Once a
// reminder is completed both stay as they are.
func (r *Reminder) FrozenAgainst(req *UpdateReminderRequest) bool {
	if !r.Completed {
		return false
	}
	if req.Completed != nil && !*req.Completed {
		return true
	}
	return req.ScheduledFor != nil && !req.ScheduledFor.Equal(r.ScheduledFor)
}

// IsEmpty reports whether the patch carries no fields.
func (r *UpdateReminderRequest) IsEmpty() bool {
	return r.Type == nil && r.Message == nil && r.ScheduledFor == nil &&
		r.Completed == nil && r.RepeatInterval == nil
}
