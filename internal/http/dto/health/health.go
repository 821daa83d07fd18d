// Package health contiene DTOs para endpoints de health check.
package health

import "time"

// Estados agregados de /readyz.
const (
	StatusReady       = "ready"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// HealthStatus es el estado de un componente: "ok" | "warn" | "error".
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse es la respuesta de /readyz.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Components map[string]HealthStatus `json:"components"`
	Version    string                  `json:"version,omitempty"`
	Service    string                  `json:"service,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Ready: degraded sigue atendiendo (ej. certificado por vencer).
func (r HealthResponse) Ready() bool { return r.Status != StatusUnavailable }
