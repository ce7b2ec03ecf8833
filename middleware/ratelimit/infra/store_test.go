package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"learn-gateway/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.UnixMilli(1_700_000_000_000)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var chatLimit = domain.RouteLimit{MaxRequests: 30, Window: 60 * time.Second}

func TestMemoryStore_DeniesAfterMaxThenAllowsAfterReset(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupEvery(0))
	key := domain.Key{Identifier: "ip1", Route: "/api/chat"}
	ctx := context.Background()

	var first domain.Decision
	for i := 0; i < 30; i++ {
		dec, err := s.Hit(ctx, key, chatLimit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if i == 0 {
			first = dec
		}
		if i == 29 && dec.Remaining != 0 {
			t.Fatalf("expected remaining=0 on last allowed call, got %d", dec.Remaining)
		}
	}

	dec, _ := s.Hit(ctx, key, chatLimit)
	if dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("31st call should be denied, got %+v", dec)
	}
	if !dec.ResetAt.Equal(first.ResetAt) {
		t.Fatalf("expected resetAt=%s, got %s", first.ResetAt, dec.ResetAt)
	}

	clock.Advance(60 * time.Second)
	dec, _ = s.Hit(ctx, key, chatLimit)
	if !dec.Allowed || dec.Remaining != 29 {
		t.Fatalf("expected fresh window at resetAt, got %+v", dec)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStore(WithCleanupEvery(0))
	limit := domain.RouteLimit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	a, _ := s.Hit(ctx, domain.Key{Identifier: "ip1", Route: "/api/chat"}, limit)
	b, _ := s.Hit(ctx, domain.Key{Identifier: "ip1", Route: "/api/generate-checklist"}, limit)
	c, _ := s.Hit(ctx, domain.Key{Identifier: "ip2", Route: "/api/chat"}, limit)
	if !a.Allowed || !b.Allowed || !c.Allowed {
		t.Fatalf("expected different (identifier, route) pairs to have their own windows")
	}
}

func TestMemoryStore_ConcurrentHitsNeverOverAdmit(t *testing.T) {
	s := NewMemoryStore(WithCleanupEvery(0))
	key := domain.Key{Identifier: "ip1", Route: "/api/chat"}
	const extra = 25

	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < chatLimit.MaxRequests+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dec, _ := s.Hit(context.Background(), key, chatLimit)
			if dec.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed.Load() != int64(chatLimit.MaxRequests) || denied.Load() != extra {
		t.Fatalf("expected %d allowed/%d denied, got %d/%d", chatLimit.MaxRequests, extra, allowed.Load(), denied.Load())
	}
}

func TestMemoryStore_CleanupEvictsOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupEvery(0))
	ctx := context.Background()

	short := domain.RouteLimit{MaxRequests: 5, Window: 10 * time.Second}
	long := domain.RouteLimit{MaxRequests: 5, Window: time.Minute}
	_, _ = s.Hit(ctx, domain.Key{Identifier: "a", Route: "/short"}, short)
	_, _ = s.Hit(ctx, domain.Key{Identifier: "a", Route: "/long"}, long)

	clock.Advance(10 * time.Second)
	n, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 evicted, got %d", n)
	}

	snap, _ := s.Snapshot(ctx)
	if snap.TotalEntries != 1 || snap.Entries[0].Route != "/long" {
		t.Fatalf("expected only the unexpired entry to survive, got %+v", snap)
	}
}

func TestMemoryStore_ResetAndClearAll(t *testing.T) {
	s := NewMemoryStore(WithCleanupEvery(0))
	ctx := context.Background()
	limit := domain.RouteLimit{MaxRequests: 1, Window: time.Minute}
	k1 := domain.Key{Identifier: "ip1", Route: "/api/chat"}
	k2 := domain.Key{Identifier: "ip2", Route: "/api/chat"}

	_, _ = s.Hit(ctx, k1, limit)
	_, _ = s.Hit(ctx, k2, limit)

	if err := s.Reset(ctx, k1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if dec, _ := s.Hit(ctx, k1, limit); !dec.Allowed {
		t.Fatalf("expected k1 allowed after reset")
	}
	if dec, _ := s.Hit(ctx, k2, limit); dec.Allowed {
		t.Fatalf("reset of k1 must not touch k2")
	}

	_ = s.ClearAll(ctx)
	snap, _ := s.Snapshot(ctx)
	if snap.TotalEntries != 0 {
		t.Fatalf("expected empty store after ClearAll, got %d", snap.TotalEntries)
	}
}

func TestMemoryStore_SnapshotReportsMillis(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupEvery(0))
	ctx := context.Background()
	_, _ = s.Hit(ctx, domain.Key{Identifier: "ip1", Route: "/api/chat"}, chatLimit)

	snap, _ := s.Snapshot(ctx)
	got := snap.Entries[0]
	if got.Key != "ip1:/api/chat" || got.Count != 1 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if want := clock.Now().Add(time.Minute).UnixMilli(); got.ResetTime != want {
		t.Fatalf("expected resetTime=%d, got %d", want, got.ResetTime)
	}
}

func TestMemoryStore_JanitorStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupEvery(time.Millisecond))
	_, _ = s.Hit(context.Background(), domain.Key{Identifier: "a", Route: "/x"}, domain.RouteLimit{MaxRequests: 1, Window: time.Second})
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)
	defer cancel()

	deadline := time.After(time.Second)
	for {
		snap, _ := s.Snapshot(context.Background())
		if snap.TotalEntries == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("janitor did not evict expired entry")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
