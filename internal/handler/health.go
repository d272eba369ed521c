package handler

import (
	"net/http"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// Health returns the health status of the service
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"sessions":      h.cfg.Session.Store,
		"notifications": h.cfg.Email.Provider,
	}

	status := "healthy"
	if h.rdb != nil {
		if err := h.rdb.HealthCheck(r.Context()); err != nil {
			services["redis"] = "unhealthy"
			status = "degraded"
		} else {
			services["redis"] = "healthy"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:   status,
		Version:  Version,
		Services: services,
	})
}

// Ready returns whether the service is ready to accept requests
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.rdb != nil {
		if err := h.rdb.HealthCheck(r.Context()); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
