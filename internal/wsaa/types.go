package wsaa

import (
	"fmt"
	"time"
)

// AccessTicket es el Ticket de Acceso devuelto por el WSAA.
// ExpiresAt siempre proviene del expirationTime declarado por la autoridad.
type AccessTicket struct {
	Token       string    `json:"token"`
	Sign        string    `json:"sign"`
	GeneratedAt time.Time `json:"generationTime"`
	ExpiresAt   time.Time `json:"expirationTime"`

	// Metadatos informativos del header de la respuesta.
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	UniqueID    uint64 `json:"uniqueId,omitempty"`
}

// ValidAt indica si el ticket sigue vigente en now.
func (t *AccessTicket) ValidAt(now time.Time) bool {
	return t != nil && t.Token != "" && now.Before(t.ExpiresAt)
}

// Remaining devuelve la vida útil restante del ticket respecto de now.
func (t *AccessTicket) Remaining(now time.Time) time.Duration {
	if t == nil {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// Clone devuelve una copia independiente del ticket.
func (t *AccessTicket) Clone() *AccessTicket {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Credentials identifica el par clave privada + certificado dentro de un
// keystore PKCS#12.
type Credentials struct {
	KeystorePath     string
	KeystorePassword string
	SignerAlias      string
}

// String nunca incluye la contraseña.
func (c Credentials) String() string {
	return fmt.Sprintf("keystore=%s alias=%s", c.KeystorePath, c.SignerAlias)
}
