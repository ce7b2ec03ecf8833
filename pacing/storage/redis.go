package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"learn-gateway/pacing"

	"github.com/redis/go-redis/v9"
)

// RedisStore guarda o estado de um cliente em "<prefix>:<client>:<key>".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL expira o estado inativo; 0 desliga.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

func NewRedisStore(rdb *redis.Client, client string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "pacing", ttl: 8 * 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	s.prefix = s.prefix + ":" + client
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, pacing.ErrNotFound
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, s.prefix+":"+key, value, s.ttl).Err()
}
