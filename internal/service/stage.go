package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/domain/pipeline"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
)

// StageServiceOptions groups dependencies for StageService.
type StageServiceOptions struct {
	Customers core.CustomerRepository // Required: customer repository
	Graph     *pipeline.Graph         // Required: stage graph
	Logger    *slog.Logger            // Optional: structured logger
}

// StageService validates and persists customer stage changes.
type StageService struct {
	customers core.CustomerRepository
	graph     *pipeline.Graph
	logger    *slog.Logger
}

// TransitionRequest asks to move a customer to Target.
type TransitionRequest struct {
	CustomerID string              `json:"-"`
	Target     model.PipelineStage `json:"target"`
	Notes      *string             `json:"notes,omitempty"`
}

// TransitionOutcome carries the legality check and, when it was applied, the log entry.
type TransitionOutcome struct {
	Result     pipeline.TransitionResult `json:"result"`
	Transition *model.StageTransition    `json:"transition,omitempty"`
}

// NewStageService constructs a new StageService.
func NewStageService(opts StageServiceOptions) (*StageService, error) {
	if opts.Customers == nil {
		return nil, errors.New("CustomerRepository is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("pipeline Graph is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StageService{
		customers: opts.Customers,
		graph:     opts.Graph,
		logger:    logger.With("component", "stage_service"),
	}, nil
}

// Transition validates the move against the customer's current stage and, when allowed,
// persists it together with its log entry. A rejected move is not an error. A stage that
// changed between read and write is reported as a conflict.
func (s *StageService) Transition(ctx context.Context, req TransitionRequest) (*TransitionOutcome, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, apperrors.ValidationField("customer_id", "customer id is required")
	}
	if !req.Target.Valid() {
		return nil, apperrors.ValidationField("target", "unknown pipeline stage")
	}

	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, mapRepoError(err, "load customer")
	}

	result := s.graph.ValidateTransition(ctx, customerID, customer.Status, req.Target)
	if !result.Allowed {
		s.logger.DebugContext(ctx, "transition rejected",
			"customer_id", customerID,
			"from", customer.Status,
			"to", req.Target,
			"reason", result.Reason,
		)
		return &TransitionOutcome{Result: result}, nil
	}

	tr, err := s.customers.ApplyTransition(ctx, core.TransitionParams{
		CustomerID: customerID,
		From:       customer.Status,
		To:         req.Target,
		Notes:      req.Notes,
	})
	if err != nil {
		return nil, mapRepoError(err, "apply transition")
	}

	s.logger.InfoContext(ctx, "customer stage changed",
		"customer_id", customerID,
		"from", tr.FromStage,
		"to", tr.ToStage,
	)
	return &TransitionOutcome{Result: result, Transition: tr}, nil
}

// History lists the customer's transitions, oldest first.
func (s *StageService) History(ctx context.Context, customerID string) ([]*model.StageTransition, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, mapRepoError(err, "load customer")
	}
	out, err := s.customers.ListTransitions(ctx, customerID)
	if err != nil {
		return nil, mapRepoError(err, "list transitions")
	}
	return out, nil
}

// NextStages lists the stages reachable from the customer's current stage.
func (s *StageService) NextStages(ctx context.Context, customerID string) ([]model.PipelineStage, error) {
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, mapRepoError(err, "load customer")
	}
	return s.graph.NextValidStages(customer.Status), nil
}

// Recommend suggests the customer's next stage.
func (s *StageService) Recommend(ctx context.Context, customerID string) (*pipeline.Recommendation, error) {
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, mapRepoError(err, "load customer")
	}
	rec, err := s.graph.Recommend(ctx, customerID, customer.Status)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "qualification unavailable")
	}
	return &rec, nil
}
