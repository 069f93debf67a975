package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/irrigation-core/internal/auth"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket auth is by single-use ticket, checked in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermStatusRead))

				r.Post("/auth/ws-ticket", s.handleWSTicket)
				r.Get("/status", s.handleStatus)
				r.Get("/metrics", s.handleMetrics)
				r.Get("/settings", s.handleGetSettings)
				r.Get("/schedules", s.handleListSchedules)
				r.Get("/schedules/next", s.handleNextSchedule)
				r.Get("/schedules/{id}", s.handleGetSchedule)
				r.Get("/zones/active", s.handleActiveZones)
				r.Get("/events", s.handleListEvents)
				r.Get("/events/stats", s.handleEventStats)
				r.Get("/events/{id}", s.handleGetEvent)
				r.Get("/jobs", s.handleListJobs)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermZoneOperate))

				r.Post("/zones/{zone}/start", s.handleStartZone)
				r.Post("/zones/{zone}/stop", s.handleStopZone)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermRainDelay))

				r.Post("/zones/{zone}/rain-cancel", s.handleRainCancel)
				r.Put("/rain-delay", s.handleSetRainDelay)
				r.Delete("/rain-delay", s.handleClearRainDelay)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermScheduleManage))

				r.Post("/schedules", s.handleCreateSchedule)
				r.Delete("/schedules/ai", s.handleClearAISchedules)
				r.Delete("/schedules/{id}", s.handleDeleteSchedule)
				r.Put("/schedules/{id}/enabled", s.handleEnableSchedule)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermSettingsManage))

				r.Patch("/settings", s.handleUpdateSettings)
				r.Put("/scheduling", s.handleSetScheduling)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.PermScheduleSync))

				r.Post("/sync", s.handleSync)
				r.Post("/jobs/{name}/run", s.handleRunJob)
			})
		})
	})

	return r
}
