package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefija todas las keys del store.
const DefaultRedisPrefix = "wsaa:ticket:"

// redisStore usa el TTL nativo de redis (SET PX).
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis conecta y verifica con PING antes de devolver el store.
func NewRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("ticketstore: redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ticketstore: redis ping failed: %w", err)
	}
	return newRedisStore(rdb, cfg.Prefix), nil
}

func newRedisStore(rdb *redis.Client, prefix string) *redisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &redisStore{client: rdb, prefix: prefix}
}

func (s *redisStore) key(k string) string { return s.prefix + k }

func (s *redisStore) Get(ctx context.Context, key string) (*wsaa.AccessTicket, bool, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, _, err := decode(b)
	if err != nil {
		corrupt(ctx, "redis", key, err)
		return nil, false, nil
	}
	return t, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, t *wsaa.AccessTicket, ttl time.Duration) error {
	if err := checkSet(t, ttl); err != nil {
		return err
	}
	b, err := encode(t, time.Time{})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), b, ttl).Err()
}

func (s *redisStore) Invalidate(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
