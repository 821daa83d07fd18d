// Package ticket expone el broker por HTTP para los clientes de los
// servicios de negocio (wsfe, wsmtxca...).
package ticket

import (
	"context"
	"encoding/json"
	"net/http"

	dto "github.com/dropDatabas3/wsaa/internal/http/dto/ticket"
	httperrors "github.com/dropDatabas3/wsaa/internal/http/errors"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

// Broker es la parte del broker que usa el controller.
type Broker interface {
	Authenticate(ctx context.Context, serviceID string) (*wsaa.AccessTicket, error)
	Invalidate(ctx context.Context, serviceID string) error
}

// TicketController atiende un único service id, el configurado en la instancia.
type TicketController struct {
	broker    Broker
	serviceID string
}

func NewTicketController(b Broker, serviceID string) *TicketController {
	return &TicketController{broker: b, serviceID: serviceID}
}

// Authenticate maneja GET /auth/afip/authenticate.
func (c *TicketController) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("TicketController.Authenticate"), logger.ServiceID(c.serviceID))

	if svc := r.URL.Query().Get("service"); svc != "" && svc != c.serviceID {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("this instance only serves "+c.serviceID))
		return
	}

	t, err := c.broker.Authenticate(ctx, c.serviceID)
	if err != nil {
		log.Error("authenticate failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(dto.FromTicket(c.serviceID, t))
}

// Invalidate maneja DELETE /auth/afip/ticket.
func (c *TicketController) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := c.broker.Invalidate(ctx, c.serviceID); err != nil {
		logger.From(ctx).Error("invalidate failed", logger.Layer("controller"), logger.ServiceID(c.serviceID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
