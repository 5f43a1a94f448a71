package model

import (
	"fmt"
	"strings"
)

// EventName identifies a domain event that may trigger follow-up automation.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type EventName string

const (
	EventVideoSent EventName = "VIDEO_SENT"
	EventNoShow    EventName = "NO_SHOW"
)

// Valid returns true for event names the automation table knows about.
func (e EventName) Valid() bool {
	return e == EventVideoSent || e == EventNoShow
}

// UnmarshalText normalizes the event name. Unknown names are kept as-is since
// they are legal input that simply has no automation rule.
func (e *EventName) UnmarshalText(text []byte) error {
	v := strings.ToUpper(strings.TrimSpace(string(text)))
	if v == "" {
		return fmt.Errorf("invalid EventName: %q", string(text))
	}
	*e = EventName(v)
	return nil
}

// Event is a domain event reported by the write path.
type Event struct {
	Name       EventName `json:"event_name"`
	CustomerID string    `json:"customer_id,omitempty"`
}
