package httpx

import (
	"net/http"

	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/service"
)

// CustomerHandlers serves stage transitions and recommendations.
type CustomerHandlers struct {
	Stages    *service.StageService
	Reminders *service.ReminderService
}

type transitionBody struct {
	Target model.PipelineStage `json:"target"`
	Notes  *string             `json:"notes,omitempty"`
}

// Transition validates and applies a stage change. A rejected move answers 422 with the
// reasons and suggestions; it is not logged as a server error.
func (h *CustomerHandlers) Transition(w http.ResponseWriter, r *http.Request) {
	var body transitionBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	out, err := h.Stages.Transition(r.Context(), service.TransitionRequest{
		CustomerID: pathID(r),
		Target:     body.Target,
		Notes:      body.Notes,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !out.Result.Allowed {
		WriteJSON(w, http.StatusUnprocessableEntity, out)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// History lists the customer's transitions, oldest first.
func (h *CustomerHandlers) History(w http.ResponseWriter, r *http.Request) {
	out, err := h.Stages.History(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transitions": out})
}

// NextStages lists the stages reachable from the customer's current stage.
func (h *CustomerHandlers) NextStages(w http.ResponseWriter, r *http.Request) {
	out, err := h.Stages.NextStages(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if out == nil {
		out = []model.PipelineStage{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stages": out})
}

// Recommendation returns the suggested next stage.
func (h *CustomerHandlers) Recommendation(w http.ResponseWriter, r *http.Request) {
	out, err := h.Stages.Recommend(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// ListReminders lists every reminder of the customer in schedule order.
func (h *CustomerHandlers) ListReminders(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reminders.ListByCustomer(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"reminders": nonNil(out)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
