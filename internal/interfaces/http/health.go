package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sawpanic/optionsrun/internal/persistence"
)

// HealthResponse reports service status and the state of its best-effort sinks
type HealthResponse struct {
	Status    string                   `json:"status"` // ok or degraded
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Cache     string                   `json:"cache"`
	Journal   *persistence.HealthCheck `json:"journal,omitempty"`
	Breakers  map[string]string        `json:"breakers"`
}

// Health always answers 200 while the engine can serve; a failing sink only degrades status
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Timestamp: s.now().UTC(),
		Cache:     "disabled",
		Breakers: map[string]string{
			s.cacheBreaker.Name():   s.cacheBreaker.State().String(),
			s.journalBreaker.Name(): s.journalBreaker.State().String(),
		},
	}

	if s.cache != nil {
		resp.Cache = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			resp.Cache = "error: " + err.Error()
			resp.Status = "degraded"
		}
	}

	if s.journalHealth != nil {
		check := s.journalHealth.Health(ctx)
		resp.Journal = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, http.StatusOK, resp)
}
