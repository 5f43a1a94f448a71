package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/service"
)

// RouterServices holds all the services needed by the HTTP router. Nil services leave
// their routes unregistered.
type RouterServices struct {
	Stages     *service.StageService
	Reminders  *service.ReminderService
	Automation *service.AutomationService
	Jobs       *service.JobService
	Worker     core.WorkerClient
	Logger     *slog.Logger
}

// NewRouter creates the API mux.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler) // also serves HEAD

	if services.Stages != nil && services.Reminders != nil {
		registerCustomerRoutes(mux, &CustomerHandlers{Stages: services.Stages, Reminders: services.Reminders})
	}
	if services.Reminders != nil {
		registerReminderRoutes(mux, &ReminderHandlers{Svc: services.Reminders})
	}
	if services.Automation != nil {
		mux.HandleFunc("POST /api/events", (&EventHandlers{Automation: services.Automation}).Create)
	}
	if services.Jobs != nil {
		registerJobRoutes(mux, &JobHandlers{Svc: services.Jobs})
	}
	if services.Worker != nil {
		mux.Handle("GET /api/worker/health", workerHealthHandler(services.Worker))
	}
	return mux
}

func registerCustomerRoutes(mux *http.ServeMux, h *CustomerHandlers) {
	mux.HandleFunc("POST /api/customers/{id}/transitions", h.Transition)
	mux.HandleFunc("GET /api/customers/{id}/transitions", h.History)
	mux.HandleFunc("GET /api/customers/{id}/next-stages", h.NextStages)
	mux.HandleFunc("GET /api/customers/{id}/recommendation", h.Recommendation)
	mux.HandleFunc("GET /api/customers/{id}/reminders", h.ListReminders)
}

func registerReminderRoutes(mux *http.ServeMux, h *ReminderHandlers) {
	mux.HandleFunc("POST /api/reminders", h.Create)
	mux.HandleFunc("GET /api/reminders/due", h.Due)
	mux.HandleFunc("PATCH /api/reminders/{id}", h.Update)
	mux.HandleFunc("POST /api/reminders/{id}/complete", h.Complete)
	mux.HandleFunc("DELETE /api/reminders/{id}", h.Delete)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry", h.RetryJob)
}

// Wrap applies the standard middleware chain, outermost last.
func Wrap(h http.Handler, logger *slog.Logger, maxBodyBytes int64) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h = MaxBody(maxBodyBytes)(h)
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	return RequestID()(h)
}
