// Package health expone /healthz (liveness) y /readyz (readiness).
package health

import (
	"encoding/json"
	"net/http"

	svc "github.com/dropDatabas3/wsaa/internal/http/services/health"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
)

type HealthController struct {
	service svc.HealthService
}

func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Healthz responde 200 mientras el proceso atienda; no toca store ni keystore.
func (c *HealthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz: 503 sólo si algún componente está caído.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res := c.service.Check(ctx)

	if res.Version != "" {
		w.Header().Set("X-Service-Version", res.Version)
	}
	code := http.StatusOK
	if !res.Ready() {
		code = http.StatusServiceUnavailable
		logger.From(ctx).Warn("not ready", logger.Layer("controller"), logger.String("status", res.Status))
	}
	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
