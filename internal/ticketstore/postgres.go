package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	migrations "github.com/dropDatabas3/wsaa/migrations/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresStore guarda el ticket serializado en wsaa_ticket. La expiración
// se filtra en SQL contra now() del servidor.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres abre el pool, verifica la conexión y aplica las migraciones
// embebidas (idempotentes).
func NewPostgres(ctx context.Context, cfg PostgresConfig) (Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ticketstore: postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ticketstore: parse pgxpool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("ticketstore: new pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ticketstore: pgxpool ping: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := migrations.Up()
	if err != nil {
		return fmt.Errorf("ticketstore: list migrations: %w", err)
	}
	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("ticketstore: read %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("ticketstore: exec %s: %w", f, err)
		}
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM wsaa_ticket
		WHERE service_id = $1 AND store_expires_at > now()
	`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, _, err := decode(payload)
	if err != nil {
		corrupt(ctx, "postgres", key, err)
		return nil, false, nil
	}
	return t, true, nil
}

func (s *postgresStore) Set(ctx context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error {
	if err := checkSet(t, ttl); err != nil {
		return err
	}
	b, err := encode(t, time.Time{})
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wsaa_ticket (service_id, payload, expires_at, store_expires_at, updated_at)
		VALUES ($1, $2, $3, now() + make_interval(secs => $4), now())
		ON CONFLICT (service_id)
		DO UPDATE SET payload = EXCLUDED.payload,
		              expires_at = EXCLUDED.expires_at,
		              store_expires_at = EXCLUDED.store_expires_at,
		              updated_at = EXCLUDED.updated_at
	`, key, b, t.ExpiresAt, ttl.Seconds())
	return err
}

func (s *postgresStore) Invalidate(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM wsaa_ticket WHERE service_id = $1`, key)
	return err
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
