// Package router arma el chi.Router de la API.
package router

import (
	"net/http"

	healthctrl "github.com/dropDatabas3/wsaa/internal/http/controllers/health"
	ticketctrl "github.com/dropDatabas3/wsaa/internal/http/controllers/ticket"
	httperrors "github.com/dropDatabas3/wsaa/internal/http/errors"
	mw "github.com/dropDatabas3/wsaa/internal/http/middlewares"
	"github.com/go-chi/chi/v5"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Ticket  *ticketctrl.TicketController
	Health  *healthctrl.HealthController
	Metrics http.Handler // nil deshabilita /metrics
}

// New registra todas las rutas.
//
//	GET    /auth/afip/authenticate  ticket vigente (renueva si hace falta)
//	DELETE /auth/afip/ticket        fuerza renovación en el próximo GET
//	GET    /healthz                 liveness
//	GET    /readyz                  store + keystore
//	GET    /metrics                 prometheus
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Std(mw.WithRecover(), mw.WithRequestID())...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// Health y métricas: sin logging por request (muy frecuentes).
	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth/afip", func(r chi.Router) {
		r.Use(mw.Std(mw.WithLogging(), mw.WithMetrics(), mw.WithNoStore())...)
		r.Get("/authenticate", deps.Ticket.Authenticate)
		r.Delete("/ticket", deps.Ticket.Invalidate)
	})
	return r
}
