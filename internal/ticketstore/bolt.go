package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/dropDatabas3/wsaa/internal/clock"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
)

var bucketTickets = []byte("tickets")

// boltStore persiste en un archivo local. Bolt no tiene TTL: la expiración
// se guarda junto al valor y se evalúa en cada Get contra el reloj.
type boltStore struct {
	db    *bolt.DB
	clock clock.Clock
}

// NewBolt abre (o crea) el archivo. clk nil usa el reloj real.
func NewBolt(cfg BoltConfig, clk clock.Clock) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("ticketstore: bolt path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("ticketstore: bolt dir: %w", err)
		}
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ticketstore: bolt open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTickets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ticketstore: bolt bucket: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTickets).Get([]byte(key)); v != nil {
			// v sólo es válido dentro de la transacción.
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	t, storeExp, err := decode(raw)
	if err != nil {
		corrupt(ctx, "bolt", key, err)
		return nil, false, nil
	}
	if !s.clock.Now().Before(storeExp) {
		return nil, false, nil
	}
	return t, true, nil
}

func (s *boltStore) Set(_ context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error {
	if err := checkSet(t, ttl); err != nil {
		return err
	}
	b, err := encode(t, s.clock.Now().Add(ttl))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTickets).Put([]byte(key), b)
	})
}

func (s *boltStore) Invalidate(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTickets).Delete([]byte(key))
	})
}

func (s *boltStore) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTickets) == nil {
			return ErrClosed
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
