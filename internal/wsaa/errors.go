package wsaa

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Taxonomía de errores del pipeline. Se comparan con errors.Is.
var (
	// ErrSigning agrupa los tres errores de la capa de credenciales/firma.
	ErrSigning = errors.New("signing error")

	ErrKeystoreUnreadable = errors.New("keystore unreadable")
	ErrAliasNotFound      = errors.New("signer alias not found")
	ErrSignatureFailure   = errors.New("signature failure")

	ErrTransport = errors.New("authority transport error")
	ErrProtocol  = errors.New("authority protocol error")

	ErrCacheUnavailable = errors.New("ticket cache unavailable")

	// ErrAlreadyAuthenticated: la autoridad rechazó el login porque ya emitió un
	// TA vigente para el mismo servicio (faultcode coe.alreadyAuthenticated).
	// Siempre viene acompañado de ErrProtocol.
	ErrAlreadyAuthenticated = errors.New("authority already issued a valid ticket")
)

// Error es el error tipado que propagan todas las capas.
// Kind es uno de los sentinels de arriba; Err es la causa original.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// E construye un *Error.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("wsaa: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap expone tanto el kind como la causa para errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is permite errors.Is(err, ErrSigning) para cualquiera de los kinds de firma.
func (e *Error) Is(target error) bool {
	return target == ErrSigning && isSigningKind(e.Kind)
}

func isSigningKind(k error) bool {
	return k == ErrKeystoreUnreadable || k == ErrAliasNotFound || k == ErrSignatureFailure
}

// KindOf devuelve el kind de err, o nil si err no es un *Error.
func KindOf(err error) error {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return nil
}

// IsTimeout reporta si la causa de err fue un timeout (contexto o red).
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
