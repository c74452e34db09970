package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/orchestrator"
)

// NewRouter builds the HTTP surface over the orchestrator facade.
func NewRouter(f *orchestrator.Facade, health *HealthChecker, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/availability", availabilityHandler(f))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(f))
			r.Get("/search", findAppointmentHandler(f))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(f))
			r.Post("/{id}/cancel", cancelAppointmentHandler(f))
			r.Post("/{id}/complete", completeAppointmentHandler(f))
		})

		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", addWaitlistHandler(f))
			r.Post("/{id}/claim", claimWaitlistHandler(f))
			r.Post("/{id}/remove", removeWaitlistHandler(f))
		})

		r.Route("/calls", func(r chi.Router) {
			r.Post("/transfer", transferHandler(f))
			r.Get("/{id}", getCallHandler(f))
			r.Post("/{id}/status", callStatusHandler(f))
			r.Post("/{id}/recording", recordingCompleteHandler(f))
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", takeMessageHandler(f))
			r.Get("/", listMessagesHandler(f))
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", listJobsHandler(f))
			r.Post("/{name}/run", runJobHandler(f))
		})
	})

	return r
}
