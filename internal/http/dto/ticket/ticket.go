// Package ticket contiene los DTOs de /auth/afip.
package ticket

import (
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

// TicketResponse es el cuerpo de GET /auth/afip/authenticate.
type TicketResponse struct {
	Token          string     `json:"token"`
	Sign           string     `json:"sign"`
	GenerationTime *time.Time `json:"generationTime,omitempty"`
	ExpirationTime time.Time  `json:"expirationTime"`
	Service        string     `json:"service"`
}

// FromTicket arma la respuesta a partir del ticket del broker.
func FromTicket(service string, t *wsaa.AccessTicket) TicketResponse {
	resp := TicketResponse{
		Token:          t.Token,
		Sign:           t.Sign,
		ExpirationTime: t.ExpiresAt,
		Service:        service,
	}
	// La autoridad puede omitir generationTime.
	if !t.GeneratedAt.IsZero() {
		g := t.GeneratedAt
		resp.GenerationTime = &g
	}
	return resp
}
