// Package ticketstore persiste tickets de acceso por service id con TTL.
//
// Soporta:
//   - memory (in-process, go-cache)
//   - redis (compartido entre réplicas)
//   - bolt (archivo local, sobrevive reinicios)
//   - postgres (tabla wsaa_ticket)
//
// Ninguna implementación decide si un ticket sigue vigente para la autoridad:
// eso es responsabilidad del broker. El store sólo garantiza no devolver una
// entrada cuyo TTL venció.
package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

// Store guarda a lo sumo un ticket por key.
type Store interface {
	// Get devuelve (nil, false, nil) si no hay entrada o si su TTL venció.
	Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error)

	// Set reemplaza la entrada. ttl <= 0 no escribe nada y devuelve ErrInvalidTTL.
	Set(ctx context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error

	// Invalidate elimina la entrada. No es error si no existía.
	Invalidate(ctx context.Context, key string) error

	// Ping verifica que el backend responde.
	Ping(ctx context.Context) error

	Close() error
}

// Drivers soportados.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

var (
	ErrInvalidTTL = errors.New("ticketstore: ttl must be positive")
	ErrNilTicket  = errors.New("ticketstore: nil ticket")
	ErrClosed     = errors.New("ticketstore: store closed")
)

// Config configuración para crear un store.
type Config struct {
	Driver string // "memory" | "redis" | "bolt" | "postgres"

	Redis    RedisConfig
	Bolt     BoltConfig
	Postgres PostgresConfig

	// Clock lo usan los backends que evalúan la expiración localmente (bolt).
	Clock clock.Clock
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type BoltConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN string
	// MaxConns 0 deja el default de pgxpool.
	MaxConns int32
}

// New crea un store según la configuración.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	case DriverBolt:
		return NewBolt(cfg.Bolt, cfg.Clock)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("ticketstore: unsupported driver %q", cfg.Driver)
	}
}

func checkSet(t *wsaa.AccessTicket, ttl time.Duration) error {
	if t == nil {
		return ErrNilTicket
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
