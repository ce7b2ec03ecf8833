package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"learn-gateway/pacing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, pacing.ErrNotFound)

	buf := []byte(`{"a":1}`)
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[2] = 'x' // o store guarda cópia

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(got))

	s.Delete("k")
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, pacing.ErrNotFound)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pacing.json")
	s := NewFileStore(path)

	_, err := s.Get(ctx, pacing.KeySessionCounts)
	require.ErrorIs(t, err, pacing.ErrNotFound)

	require.NoError(t, s.Set(ctx, pacing.KeySessionCounts, []byte(`{"2026-10-14":3}`)))
	require.NoError(t, s.Set(ctx, pacing.KeyLastSessionEnd, []byte(`1700000000000`)))

	reopened := NewFileStore(path)
	got, err := reopened.Get(ctx, pacing.KeySessionCounts)
	require.NoError(t, err)
	require.JSONEq(t, `{"2026-10-14":3}`, string(got))

	got, err = reopened.Get(ctx, pacing.KeyLastSessionEnd)
	require.NoError(t, err)
	require.Equal(t, "1700000000000", string(got))

	require.Error(t, s.Set(ctx, "bad", []byte("{not json")))
}

func TestFileStore_CorruptFileReadsFailAndWritesRecover(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pacing.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	s := NewFileStore(path)

	_, err := s.Get(ctx, pacing.KeyAPITimestamps)
	require.Error(t, err)
	require.NotErrorIs(t, err, pacing.ErrNotFound)

	require.NoError(t, s.Set(ctx, pacing.KeyAPITimestamps, []byte(`[1,2]`)))
	got, err := s.Get(ctx, pacing.KeyAPITimestamps)
	require.NoError(t, err)
	require.Equal(t, "[1,2]", string(got))
}

func TestFileStore_LimiterFallsBackOnCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pacing.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	l := pacing.New(NewFileStore(path))
	require.True(t, l.CheckDailyLimit(ctx).Allowed)
	require.True(t, l.CheckCooldown(ctx).Allowed)

	l.IncrementSessionCount(ctx)
	day := time.Now().Format(pacing.DayLayout)
	require.Equal(t, 1, l.State(ctx).DailySessionCounts[day])
}

func TestRedisStore_GetSet(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	client := "test-" + time.Now().Format("150405.000000")
	s := NewRedisStore(rdb, client, WithPrefix("pacing-test"), WithTTL(time.Minute))
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), "pacing-test:"+client+":"+pacing.KeySessionCounts).Err()
	})

	_, err := s.Get(ctx, pacing.KeySessionCounts)
	require.ErrorIs(t, err, pacing.ErrNotFound)

	require.NoError(t, s.Set(ctx, pacing.KeySessionCounts, []byte(`{"2026-10-14":1}`)))
	got, err := s.Get(ctx, pacing.KeySessionCounts)
	require.NoError(t, err)
	require.JSONEq(t, `{"2026-10-14":1}`, string(got))
}

func TestFileStore_GetReturnsExactBytes(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "pacing.json"))

	values := map[string]string{
		pacing.KeyAPITimestamps:  `[1700000000000,1700000000500]`,
		pacing.KeySessionCounts:  `{"2026-10-13":2,"2026-10-14":1}`,
		pacing.KeyLastSessionEnd: `1700000000000`,
	}
	for k, v := range values {
		require.NoError(t, s.Set(ctx, k, []byte(v)))
	}
	for k, v := range values {
		got, err := NewFileStore(s.Path()).Get(ctx, k)
		require.NoError(t, err)
		require.Equal(t, v, string(got), k)
	}
}
