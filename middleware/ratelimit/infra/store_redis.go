package infra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"learn-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript faz check-and-increment atômico por chave.
// Retorno: {allowed, count, pttl_ms}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', key) or '0')
local ttl = redis.call('PTTL', key)
if count == 0 or ttl <= 0 then
  redis.call('SET', key, 1, 'PX', window)
  return {1, 1, window}
end
if count >= max then
  return {0, count, ttl}
end
count = redis.call('INCR', key)
return {1, count, ttl}
`)

// RedisStore implementa domain.WindowStore em Redis, para quando várias
// instâncias do gateway precisam dividir os mesmos contadores.
//
// A expiração fica a cargo do Redis (PEXPIRE), então Cleanup não faz nada.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) redisKey(k domain.Key) string { return s.prefix + ":" + k.String() }

func (s *RedisStore) Hit(ctx context.Context, key domain.Key, limit domain.RouteLimit) (domain.Decision, error) {
	now := s.now()
	res, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.redisKey(key)},
		limit.MaxRequests, limit.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("redis fixed window: unexpected result %v", res)
	}

	allowed, count, ttl := res[0] == 1, int(res[1]), time.Duration(res[2])*time.Millisecond
	resetAt := now.Add(ttl)
	dec := domain.Decision{
		Allowed: allowed,
		Limit:   limit.MaxRequests,
		ResetAt: resetAt,
	}
	if allowed {
		dec.Remaining = limit.MaxRequests - count
	} else {
		dec.RetryAfter = domain.RetryAfter(now, resetAt)
	}
	return dec, nil
}

func (s *RedisStore) Reset(ctx context.Context, key domain.Key) error {
	return s.rdb.Del(ctx, s.redisKey(key)).Err()
}

func (s *RedisStore) ClearAll(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Cleanup(context.Context) (int, error) { return 0, nil }

func (s *RedisStore) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	now := s.now()
	pipe := s.rdb.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		gets[i] = pipe.Get(ctx, k)
		ttls[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("redis snapshot: %w", err)
	}

	out := make([]domain.SnapshotEntry, 0, len(keys))
	for i, k := range keys {
		count, err := gets[i].Int()
		if err != nil {
			// expirou entre o SCAN e o GET
			continue
		}
		key, ok := domain.ParseKey(strings.TrimPrefix(k, s.prefix+":"))
		if !ok {
			continue
		}
		ttl := ttls[i].Val()
		if ttl < 0 {
			ttl = 0
		}
		out = append(out, domain.NewSnapshotEntry(key, domain.WindowEntry{Count: count, ResetAt: now.Add(ttl)}))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return domain.Snapshot{TotalEntries: len(out), Entries: out}, nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, s.prefix+":*", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
