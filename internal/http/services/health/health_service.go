// Package health contiene el service para health checks.
package health

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
	dto "github.com/dropDatabas3/wsaa/internal/http/dto/health"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
)

// CertWarnWindow: un certificado que vence antes de este margen degrada el estado.
const CertWarnWindow = 30 * 24 * time.Hour

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// KeystoreChecker abre el keystore y devuelve el certificado firmante.
type KeystoreChecker interface {
	Check(ctx context.Context) (*x509.Certificate, error)
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	StoreCheck  func(ctx context.Context) error
	StoreDriver string
	Keystore    KeystoreChecker
	Service     string
	Version     string
	Clock       clock.Clock
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("health"), logger.Op("Check"))
	now := s.deps.Clock.Now()

	response := dto.HealthResponse{
		Components: make(map[string]dto.HealthStatus),
		Version:    s.deps.Version,
		Service:    s.deps.Service,
		Timestamp:  now.UTC(),
	}
	hasErrors := false
	hasCriticalErrors := false

	// 1) Token store (crítico)
	name := "token_store"
	if s.deps.StoreDriver != "" {
		name = "token_store_" + s.deps.StoreDriver
	}
	if s.deps.StoreCheck == nil {
		response.Components[name] = dto.HealthStatus{Status: "error", Message: "not initialized"}
		hasCriticalErrors = true
	} else if err := s.deps.StoreCheck(ctx); err != nil {
		response.Components[name] = dto.HealthStatus{Status: "error", Message: fmt.Sprintf("unavailable: %v", err)}
		hasCriticalErrors = true
		log.Error("token store unavailable", logger.Err(err))
	} else {
		response.Components[name] = dto.HealthStatus{Status: "ok"}
	}

	// 2) Keystore PKCS#12 (crítico). Un certificado por vencer sólo degrada.
	if s.deps.Keystore == nil {
		response.Components["keystore"] = dto.HealthStatus{Status: "error", Message: "not initialized"}
		hasCriticalErrors = true
	} else if cert, err := s.deps.Keystore.Check(ctx); err != nil {
		response.Components["keystore"] = dto.HealthStatus{Status: "error", Message: err.Error()}
		hasCriticalErrors = true
		log.Error("keystore check failed", logger.Err(err))
	} else {
		st := certStatus(cert, now)
		switch st.Status {
		case "error":
			hasCriticalErrors = true
		case "warn":
			hasErrors = true
		}
		response.Components["keystore"] = st
	}

	switch {
	case hasCriticalErrors:
		response.Status = dto.StatusUnavailable
	case hasErrors:
		response.Status = dto.StatusDegraded
	default:
		response.Status = dto.StatusReady
	}
	return response
}

func certStatus(cert *x509.Certificate, now time.Time) dto.HealthStatus {
	if cert == nil {
		return dto.HealthStatus{Status: "ok"}
	}
	subject := cert.Subject.CommonName
	switch {
	case now.After(cert.NotAfter):
		return dto.HealthStatus{Status: "error", Message: fmt.Sprintf("certificate %q expired at %s", subject, cert.NotAfter.Format(time.RFC3339))}
	case now.Before(cert.NotBefore):
		return dto.HealthStatus{Status: "error", Message: fmt.Sprintf("certificate %q not valid before %s", subject, cert.NotBefore.Format(time.RFC3339))}
	case cert.NotAfter.Sub(now) < CertWarnWindow:
		return dto.HealthStatus{Status: "warn", Message: fmt.Sprintf("certificate %q expires at %s", subject, cert.NotAfter.Format(time.RFC3339))}
	}
	return dto.HealthStatus{Status: "ok", Message: fmt.Sprintf("certificate %q valid until %s", subject, cert.NotAfter.Format(time.RFC3339))}
}
