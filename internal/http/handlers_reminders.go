package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/service"
)

// ReminderHandlers serves reminder scheduling.
type ReminderHandlers struct {
	Svc *service.ReminderService
}

// Create schedules a reminder.
func (h *ReminderHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReminderRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rem, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rem)
}

// Due lists incomplete reminders due now, or at ?at= (RFC 3339) when given.
func (h *ReminderHandlers) Due(w http.ResponseWriter, r *http.Request) {
	var (
		out []*model.Reminder
		err error
	)
	if at := r.URL.Query().Get("at"); at != "" {
		ts, parseErr := time.Parse(time.RFC3339, at)
		if parseErr != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: parseErr, Field: "at"})
			return
		}
		out, err = h.Svc.DueAt(r.Context(), ts)
	} else {
		out, err = h.Svc.Due(r.Context())
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"reminders": nonNil(out)})
}

// Update applies a partial patch.
func (h *ReminderHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateReminderRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.IsEmpty() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("at least one field must be updated"),
		})
		return
	}
	rem, err := h.Svc.Update(r.Context(), pathID(r), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rem)
}

// Complete marks the reminder completed. Completing twice is fine.
func (h *ReminderHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	rem, err := h.Svc.MarkCompleted(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if rem == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("reminder not found")})
		return
	}
	WriteJSON(w, http.StatusOK, rem)
}

// Delete removes the reminder.
func (h *ReminderHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Svc.Delete(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("reminder not found")})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
