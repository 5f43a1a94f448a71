// Package model defines the core data types shared by the pipeline services.
package model

import (
	"fmt"
	"strings"
	"time"
)

// PipelineStage is a named step in the customer lifecycle.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type PipelineStage string

const (
	StageNewLead          PipelineStage = "NEW_LEAD"
	StageWarmingUp        PipelineStage = "WARMING_UP"
	StageInvited          PipelineStage = "INVITED"
	StageQualified        PipelineStage = "QUALIFIED"
	StagePresentationSent PipelineStage = "PRESENTATION_SENT"
	StageFollowUp         PipelineStage = "FOLLOW_UP"
	StageClosedWon        PipelineStage = "CLOSED_WON"

	// StageNotNow and StageLongTermNurture are alternative branches outside the ordered sequence.
	StageNotNow          PipelineStage = "NOT_NOW"
	StageLongTermNurture PipelineStage = "LONG_TERM_NURTURE"
)

// orderedStages is the total order used for skip detection.
var orderedStages = []PipelineStage{
	StageNewLead,
	StageWarmingUp,
	StageInvited,
	StageQualified,
	StagePresentationSent,
	StageFollowUp,
	StageClosedWon,
}

// OrderedStages returns a copy of the ordered stage sequence.
func OrderedStages() []PipelineStage {
	out := make([]PipelineStage, len(orderedStages))
	copy(out, orderedStages)
	return out
}

// Index returns the position of the stage in the ordered sequence, or -1 for
// alternative and unknown stages.
func (s PipelineStage) Index() int {
	for i, st := range orderedStages {
		if st == s {
			return i
		}
	}
	return -1
}

// IsAlternative reports whether the stage is one of the branch stages.
func (s PipelineStage) IsAlternative() bool {
	return s == StageNotNow || s == StageLongTermNurture
}

// Valid returns true if the stage is a known pipeline stage.
func (s PipelineStage) Valid() bool {
	return s.Index() >= 0 || s.IsAlternative()
}

// UnmarshalText accepts stage names case-insensitively.
func (s *PipelineStage) UnmarshalText(text []byte) error {
	v := PipelineStage(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid PipelineStage: %q", string(text))
	}
	*s = v
	return nil
}

// Customer is the subset of the customer record the pipeline reads and writes.
type Customer struct {
	ID        string        `json:"id"         db:"id"`
	Name      string        `json:"name"       db:"name"`
	Status    PipelineStage `json:"status"     db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// StageTransition is an append-only log entry written for every accepted transition.
type StageTransition struct {
	ID         string        `json:"id"              db:"id"`
	CustomerID string        `json:"customer_id"     db:"customer_id"`
	FromStage  PipelineStage `json:"from_stage"      db:"from_stage"`
	ToStage    PipelineStage `json:"to_stage"        db:"to_stage"`
	Notes      *string       `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time     `json:"created_at"      db:"created_at"`
}

// Qualification is the answer of the qualification oracle for a customer.
type Qualification struct {
	Score     int      `json:"score"`
	Qualified bool     `json:"qualified"`
	Reason    string   `json:"reason,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}
