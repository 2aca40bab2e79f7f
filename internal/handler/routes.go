package handler

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) RegisterRoutes(r chi.Router) {
	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware())
		}

		// Stateless resize
		r.Post("/resize", h.ResizeOnce)
		r.Get("/stats", h.Stats)

		// Editing sessions
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Put("/image", h.ReplaceImage)
			r.Post("/preview", h.Preview)
			r.Post("/download", h.Download)
			r.Post("/adjust", h.AdjustTarget)
			r.Delete("/", h.DeleteSession)
		})
	})
}
