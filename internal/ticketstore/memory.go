package ticketstore

import (
	"context"
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	gocache "github.com/patrickmn/go-cache"
)

// memoryStore guarda copias del ticket en un go-cache del proceso.
type memoryStore struct {
	c *gocache.Cache
}

// NewMemory crea un store en memoria. Sin expiración por defecto: cada Set
// trae su propio TTL.
func NewMemory() Store {
	return &memoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memoryStore) Get(_ context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	t, ok := v.(*wsaa.AccessTicket)
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error {
	if err := checkSet(t, ttl); err != nil {
		return err
	}
	m.c.Set(key, t.Clone(), ttl)
	return nil
}

func (m *memoryStore) Invalidate(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Close() error {
	m.c.Flush()
	return nil
}
