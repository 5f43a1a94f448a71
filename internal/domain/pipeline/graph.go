// Package pipeline holds the stage-transition rules for the customer pipeline:
// ordering, alternative branches, qualification gating and recommendations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-pipeline/internal/domain/model"
)

// QualificationOracle answers whether a customer meets the criteria for the
// qualification-gated stages.
type QualificationOracle interface {
	Evaluate(ctx context.Context, customerID string) (*model.Qualification, error)
}

// TransitionResult is the outcome of a legality check. A rejection is a value, not an error.
type TransitionResult struct {
	Allowed     bool     `json:"allowed"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Recommendation is the deterministic next-stage suggestion for a customer.
type Recommendation struct {
	RecommendedStage model.PipelineStage `json:"recommended_stage,omitempty"`
	Confidence       int                 `json:"confidence"`
	Reasoning        []string            `json:"reasoning"`
}

// Thresholds applied by Recommend.
const (
	inviteScoreThreshold  = 75
	nurtureScoreThreshold = 50

	confidenceQualified = 90
	confidenceInvite    = 80
	confidenceNurture   = 70
	confidenceDefault   = 60
)

// alternativePaths maps each of the first six ordered stages to the branch stages
// reachable from it regardless of order.
var alternativePaths = map[model.PipelineStage][]model.PipelineStage{
	model.StageNewLead:          {model.StageNotNow, model.StageLongTermNurture},
	model.StageWarmingUp:        {model.StageNotNow, model.StageLongTermNurture},
	model.StageInvited:          {model.StageNotNow, model.StageLongTermNurture},
	model.StageQualified:        {model.StageNotNow, model.StageLongTermNurture},
	model.StagePresentationSent: {model.StageNotNow, model.StageLongTermNurture},
	model.StageFollowUp:         {model.StageNotNow, model.StageLongTermNurture},
}

// qualificationGated lists stages whose natural entry requires the oracle's approval.
var qualificationGated = map[model.PipelineStage]bool{
	model.StageQualified:        true,
	model.StagePresentationSent: true,
	model.StageFollowUp:         true,
	model.StageClosedWon:        true,
}

// GraphOptions groups dependencies for Graph.
type GraphOptions struct {
	Oracle QualificationOracle // Required: qualification oracle
}

// Graph evaluates stage transitions. It is stateless apart from the oracle and safe
// for concurrent use.
type Graph struct {
	oracle QualificationOracle
}

// NewGraph constructs a Graph.
func NewGraph(opts GraphOptions) (*Graph, error) {
	if opts.Oracle == nil {
		return nil, errors.New("QualificationOracle is required")
	}
	return &Graph{oracle: opts.Oracle}, nil
}

// AlternativePaths returns the branch stages reachable from current.
func AlternativePaths(current model.PipelineStage) []model.PipelineStage {
	alts := alternativePaths[current]
	out := make([]model.PipelineStage, len(alts))
	copy(out, alts)
	return out
}

// RequiresQualification reports whether entering stage naturally needs the oracle's approval.
func RequiresQualification(stage model.PipelineStage) bool {
	return qualificationGated[stage]
}

// NextStage returns the natural successor of current. Alternative stages re-enter the
// pipeline at NEW_LEAD; CLOSED_WON and unknown stages have no successor.
func NextStage(current model.PipelineStage) (model.PipelineStage, bool) {
	if current.IsAlternative() {
		return model.StageNewLead, true
	}
	ordered := model.OrderedStages()
	ci := current.Index()
	if ci < 0 || ci+1 >= len(ordered) {
		return "", false
	}
	return ordered[ci+1], true
}

// NextValidStages lists the stages a customer may move to from current, natural stage first.
func (g *Graph) NextValidStages(current model.PipelineStage) []model.PipelineStage {
	var out []model.PipelineStage
	if next, ok := NextStage(current); ok {
		out = append(out, next)
	}
	return append(out, AlternativePaths(current)...)
}

// ValidateTransition checks whether moving customerID from current to target is legal.
func (g *Graph) ValidateTransition(
	ctx context.Context,
	customerID string,
	current, target model.PipelineStage,
) TransitionResult {
	for _, alt := range alternativePaths[current] {
		if alt == target {
			return TransitionResult{Allowed: true}
		}
	}

	if !current.Valid() || !target.Valid() || current == target {
		return invalidTransition(current, target)
	}

	if current.IsAlternative() {
		return g.validateReentry(current, target)
	}

	ci, ti := current.Index(), target.Index()
	switch {
	case ti < 0:
		return invalidTransition(current, target)
	case ti == ci+1:
		if RequiresQualification(target) {
			return g.checkQualification(ctx, customerID, target)
		}
		return TransitionResult{Allowed: true}
	case ti < ci:
		return TransitionResult{
			Allowed: true,
			Reason:  fmt.Sprintf("Backward move from %s to %s (correction)", current, target),
		}
	case ti > ci+1:
		return skipRejection(ci, ti)
	default:
		return invalidTransition(current, target)
	}
}

func (g *Graph) validateReentry(current, target model.PipelineStage) TransitionResult {
	if target == model.StageNewLead {
		return TransitionResult{Allowed: true}
	}
	return TransitionResult{
		Allowed:     false,
		Reason:      fmt.Sprintf("Customers in %s re-enter the pipeline at %s", current, model.StageNewLead),
		Suggestions: []string{fmt.Sprintf("Move the customer to %s first", model.StageNewLead)},
	}
}

func (g *Graph) checkQualification(ctx context.Context, customerID string, target model.PipelineStage) TransitionResult {
	q, err := g.oracle.Evaluate(ctx, customerID)
	if err != nil {
		return TransitionResult{
			Allowed:     false,
			Reason:      fmt.Sprintf("qualification check failed: %v", err),
			Suggestions: []string{"Retry once the qualification data is available"},
		}
	}
	if q == nil || !q.Qualified {
		reason := "Customer does not meet qualification criteria"
		var missing []string
		if q != nil {
			if strings.TrimSpace(q.Reason) != "" {
				reason = q.Reason
			}
			missing = q.Missing
		}
		return TransitionResult{
			Allowed:     false,
			Reason:      reason,
			Suggestions: qualificationSuggestions(target, missing),
		}
	}
	return TransitionResult{Allowed: true}
}

func qualificationSuggestions(target model.PipelineStage, missing []string) []string {
	out := make([]string, 0, len(missing)+1)
	for _, m := range missing {
		out = append(out, "Complete qualification requirement: "+m)
	}
	return append(out, fmt.Sprintf("Re-check qualification before moving to %s", target))
}

func skipRejection(ci, ti int) TransitionResult {
	ordered := model.OrderedStages()
	path := make([]string, 0, ti-ci+1)
	for i := ci; i <= ti; i++ {
		path = append(path, string(ordered[i]))
	}
	return TransitionResult{
		Allowed: false,
		Reason:  "Cannot skip stages. Required path: " + strings.Join(path, " → "),
		Suggestions: []string{
			fmt.Sprintf("Advance one stage at a time; next stage is %s", ordered[ci+1]),
		},
	}
}

func invalidTransition(current, target model.PipelineStage) TransitionResult {
	return TransitionResult{
		Allowed: false,
		Reason:  fmt.Sprintf("Invalid transition from %s to %s", current, target),
	}
}

// Recommend suggests the next stage for customerID based on the oracle's score.
// Only oracle failures are returned as errors.
func (g *Graph) Recommend(
	ctx context.Context,
	customerID string,
	current model.PipelineStage,
) (Recommendation, error) {
	q, err := g.oracle.Evaluate(ctx, customerID)
	if err != nil {
		return Recommendation{}, fmt.Errorf("evaluate qualification: %w", err)
	}
	if q == nil {
		q = &model.Qualification{}
	}

	switch {
	case current == model.StageInvited && q.Qualified:
		return Recommendation{
			RecommendedStage: model.StageQualified,
			Confidence:       confidenceQualified,
			Reasoning:        []string{"Customer meets all qualification criteria"},
		}, nil
	case current == model.StageWarmingUp && q.Score >= inviteScoreThreshold:
		return Recommendation{
			RecommendedStage: model.StageInvited,
			Confidence:       confidenceInvite,
			Reasoning: []string{
				fmt.Sprintf("Qualification score %d is at or above %d", q.Score, inviteScoreThreshold),
			},
		}, nil
	case (current == model.StageNewLead || current == model.StageWarmingUp) && q.Score < nurtureScoreThreshold:
		return Recommendation{
			RecommendedStage: model.StageLongTermNurture,
			Confidence:       confidenceNurture,
			Reasoning: []string{
				fmt.Sprintf("Qualification score %d is below %d", q.Score, nurtureScoreThreshold),
				"Low engagement suggests long-term nurturing",
			},
		}, nil
	}

	next, ok := NextStage(current)
	if !ok {
		return Recommendation{
			Confidence: confidenceDefault,
			Reasoning:  []string{fmt.Sprintf("No further stage after %s", current)},
		}, nil
	}
	return Recommendation{
		RecommendedStage: next,
		Confidence:       confidenceDefault,
		Reasoning:        []string{fmt.Sprintf("Natural progression from %s", current)},
	}, nil
}
