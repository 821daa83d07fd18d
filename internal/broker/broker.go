// Package broker entrega tickets de acceso vigentes por service id.
//
// Un hit en el token store se devuelve tal cual. Ante un miss (o un ticket
// dentro del margen de renovación) se arma un loginTicketRequest nuevo, se
// firma y se canjea contra el WSAA. Las renovaciones concurrentes de un mismo
// service id se coalescen: una sola firma y un solo LoginCms, y todos los
// llamadores reciben el mismo resultado.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/dropDatabas3/wsaa/internal/metrics"
	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/ticketstore"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/dropDatabas3/wsaa/internal/wsaa/request"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultValidityWindow = 12 * time.Hour
	DefaultRenewTimeout   = 45 * time.Second
)

var ErrEmptyService = errors.New("broker: service id is required")

// RequestBuilder arma el loginTicketRequest (ver request.Builder).
type RequestBuilder interface {
	Build(serviceID string, window time.Duration) (*request.LoginTicketRequest, error)
}

// Signer firma el documento y devuelve el CMS DER (ver signer.Signer).
type Signer interface {
	Sign(ctx context.Context, document []byte) ([]byte, error)
}

// Authority canjea el CMS por un ticket (ver client.Client).
type Authority interface {
	LoginCMS(ctx context.Context, cms []byte) (*wsaa.AccessTicket, error)
}

// Config parámetros de la política de cache/renovación.
type Config struct {
	// ValidityWindow es expirationTime - generationTime del request.
	ValidityWindow time.Duration
	// RenewBefore adelanta la renovación respecto del expirationTime declarado.
	RenewBefore time.Duration
	// CacheTTL acota el TTL derivado del ticket. 0 = sin tope.
	CacheTTL time.Duration
	// RenewTimeout acota una renovación completa, independiente del llamador.
	RenewTimeout time.Duration
}

// Deps dependencias del broker.
type Deps struct {
	Store     ticketstore.Store
	Builder   RequestBuilder
	Signer    Signer
	Authority Authority
	Clock     clock.Clock
}

// Broker es seguro para uso concurrente.
type Broker struct {
	cfg   Config
	store ticketstore.Store
	build RequestBuilder
	sign  Signer
	auth  Authority
	clock clock.Clock

	sf singleflight.Group
}

// New valida dependencias y aplica defaults.
func New(cfg Config, d Deps) (*Broker, error) {
	if d.Store == nil || d.Builder == nil || d.Signer == nil || d.Authority == nil {
		return nil, errors.New("broker: store, builder, signer and authority are required")
	}
	if cfg.ValidityWindow <= 0 {
		cfg.ValidityWindow = DefaultValidityWindow
	}
	if cfg.RenewTimeout <= 0 {
		cfg.RenewTimeout = DefaultRenewTimeout
	}
	if cfg.RenewBefore < 0 {
		cfg.RenewBefore = 0
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	return &Broker{
		cfg:   cfg,
		store: d.Store,
		build: d.Builder,
		sign:  d.Signer,
		auth:  d.Authority,
		clock: d.Clock,
	}, nil
}

// Authenticate devuelve un ticket vigente para serviceID, renovándolo si hace
// falta. Nunca devuelve un ticket en o después de su ExpiresAt.
//
// Si ctx se cancela mientras espera una renovación, devuelve ctx.Err(); la
// renovación sigue y su resultado queda en el store para el próximo llamador.
func (b *Broker) Authenticate(ctx context.Context, serviceID string) (*wsaa.AccessTicket, error) {
	const op = "broker.Authenticate"
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, ErrEmptyService
	}
	log := logger.From(ctx).With(logger.Layer("broker"), logger.Op("Authenticate"), logger.ServiceID(serviceID))

	t, ok, err := b.store.Get(ctx, serviceID)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(serviceID, "error").Inc()
		log.Error("token store lookup failed", logger.Err(err))
		return nil, wsaa.E(wsaa.ErrCacheUnavailable, op, err)
	}
	if ok && b.fresh(t) {
		metrics.CacheLookups.WithLabelValues(serviceID, "hit").Inc()
		log.Debug("ticket cache hit", logger.Time("expires_at", t.ExpiresAt))
		return t, nil
	}
	metrics.CacheLookups.WithLabelValues(serviceID, "miss").Inc()

	ch := b.sf.DoChan(serviceID, func() (any, error) {
		return b.renew(ctx, serviceID)
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedWaiters.WithLabelValues(serviceID).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*wsaa.AccessTicket).Clone(), nil
	case <-ctx.Done():
		log.Warn("caller gave up waiting for renewal", logger.Err(ctx.Err()))
		return nil, ctx.Err()
	}
}

// Invalidate descarta el ticket cacheado; el próximo Authenticate renueva.
func (b *Broker) Invalidate(ctx context.Context, serviceID string) error {
	const op = "broker.Invalidate"
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return ErrEmptyService
	}
	if err := b.store.Invalidate(ctx, serviceID); err != nil {
		return wsaa.E(wsaa.ErrCacheUnavailable, op, err)
	}
	logger.From(ctx).Info("ticket invalidated", logger.Layer("broker"), logger.ServiceID(serviceID))
	return nil
}

// fresh: hit sólo si now < ExpiresAt - RenewBefore.
func (b *Broker) fresh(t *wsaa.AccessTicket) bool {
	if t == nil || t.Token == "" {
		return false
	}
	return b.clock.Now().Before(t.ExpiresAt.Add(-b.cfg.RenewBefore))
}

// renew corre una sola vez por service id a la vez. Usa un contexto separado
// del llamador que la disparó: si ese llamador se va, los demás esperan igual.
func (b *Broker) renew(callerCtx context.Context, serviceID string) (*wsaa.AccessTicket, error) {
	const op = "broker.renew"
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), b.cfg.RenewTimeout)
	defer cancel()

	log := logger.From(ctx).With(logger.Layer("broker"), logger.Op("renew"), logger.ServiceID(serviceID))
	start := time.Now()

	t, err := b.renewOnce(ctx, op, serviceID)
	result := resultLabel(err)
	if err == nil && t.cached {
		result = "cached"
	}
	metrics.Renewals.WithLabelValues(serviceID, result).Inc()
	metrics.RenewalLatency.WithLabelValues(serviceID).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("ticket renewal failed", logger.Err(err), logger.String("result", result), logger.Duration(time.Since(start)))
		return nil, err
	}
	if !t.cached {
		metrics.TicketExpiry.WithLabelValues(serviceID).Set(float64(t.ExpiresAt.Unix()))
		log.Info("ticket renewed",
			logger.Token("token", t.Token),
			logger.Time("expires_at", t.ExpiresAt),
			logger.TTL(t.ttl),
			logger.Duration(time.Since(start)),
		)
	}
	return t.AccessTicket, nil
}

type renewed struct {
	*wsaa.AccessTicket
	cached bool
	ttl    time.Duration
}

func (b *Broker) renewOnce(ctx context.Context, op, serviceID string) (*renewed, error) {
	// Otro proceso (o una renovación que terminó justo antes) pudo haber
	// escrito el store entre el miss y la entrada al singleflight.
	t, ok, err := b.store.Get(ctx, serviceID)
	if err != nil {
		return nil, wsaa.E(wsaa.ErrCacheUnavailable, op, err)
	}
	if ok && b.fresh(t) {
		return &renewed{AccessTicket: t, cached: true}, nil
	}

	req, err := b.build.Build(serviceID, b.cfg.ValidityWindow)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	doc, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	// Si RenewTimeout venció antes de firmar es un timeout, no una falla del firmante.
	if err := ctx.Err(); err != nil {
		return nil, wsaa.E(wsaa.ErrTransport, op, err)
	}
	cms, err := b.sign.Sign(ctx, doc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, wsaa.E(wsaa.ErrTransport, op, err)
		}
		return nil, err
	}
	issued, err := b.auth.LoginCMS(ctx, cms)
	if err != nil {
		return nil, err
	}

	ttl, err := b.ttlFor(issued)
	if err != nil {
		return nil, wsaa.E(wsaa.ErrProtocol, op, err)
	}
	if err := b.store.Set(ctx, serviceID, issued, ttl); err != nil {
		return nil, wsaa.E(wsaa.ErrCacheUnavailable, op, err)
	}
	return &renewed{AccessTicket: issued, ttl: ttl}, nil
}

// ttlFor deriva el TTL del expirationTime declarado por la autoridad.
func (b *Broker) ttlFor(t *wsaa.AccessTicket) (time.Duration, error) {
	now := b.clock.Now()
	remaining := t.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0, fmt.Errorf("authority issued an expired ticket (expirationTime %s)", t.ExpiresAt.Format(time.RFC3339))
	}
	ttl := remaining - b.cfg.RenewBefore
	if ttl <= 0 {
		return 0, fmt.Errorf("ticket lifetime %s is shorter than renew margin %s", remaining, b.cfg.RenewBefore)
	}
	if b.cfg.CacheTTL > 0 && ttl > b.cfg.CacheTTL {
		ttl = b.cfg.CacheTTL
	}
	return ttl, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, wsaa.ErrSigning):
		return "signing"
	case errors.Is(err, wsaa.ErrTransport):
		return "transport"
	case errors.Is(err, wsaa.ErrProtocol):
		return "protocol"
	case errors.Is(err, wsaa.ErrCacheUnavailable):
		return "cache"
	default:
		return "error"
	}
}
