package httpx

import (
	"net/http"

	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/service"
)

// EventHandlers accepts domain events for follow-up automation.
type EventHandlers struct {
	Automation *service.AutomationService
}

type eventResponse struct {
	service.TriggerOutcome
	Error string `json:"error,omitempty"`
}

// Create runs the automation rules for the event. The request itself always succeeds;
// the outcome reports whether reminders were delivered, skipped or failed.
func (h *EventHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !DecodeJSON(w, r, &ev) {
		return
	}
	out := h.Automation.HandleEvent(r.Context(), ev)
	resp := eventResponse{TriggerOutcome: out}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	WriteJSON(w, http.StatusAccepted, resp)
}
