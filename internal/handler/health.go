package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"photoresizer/internal/metrics"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// Ping database to verify connection
	ctx := r.Context()
	if err := h.db.PingContext(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "healthy",
		Sessions:  h.sessions.Len(),
		Timestamp: time.Now().UTC(),
	})
}

type statsResponse struct {
	*metrics.Stats
	ActiveSessions int `json:"active_sessions"`
}

// Stats returns the aggregated activity counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.metrics.GetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, ActiveSessions: h.sessions.Len()})
}
