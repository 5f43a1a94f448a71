package httpx

import (
	"net/http"

	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/service"
)

const defaultJobListLimit = 50

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc *service.JobService
}

// CreateJob enqueues a job for the dispatcher.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.Svc.Enqueue(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// GetJob returns a job with its status and result.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobs lists jobs by ?status= (default failed) and ?limit=.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := model.JobStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.JobStatusFailed
	}
	jobs, err := h.Svc.List(r.Context(), status, parseIntQuery(r, "limit", defaultJobListLimit))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": nonNil(jobs)})
}

// RetryJob resets a failed job to pending.
func (h *JobHandlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Retry(r.Context(), pathID(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
