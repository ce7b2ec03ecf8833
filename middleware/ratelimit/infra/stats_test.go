package infra

import (
	"context"
	"errors"
	"strings"
	"testing"

	"learn-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMemoryStatsStore_CountsByRouteAndIdentifier(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackIdentifiers(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Identifier: "ip1", Route: "/api/chat", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Identifier: "ip1", Route: "/api/chat", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Identifier: "ip2", Route: "/api/other", Allowed: true, StoreError: true})

	if got := s.Total(); got.Allowed != 2 || got.Denied != 1 || got.StoreErrors != 1 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got := s.ByRoute()["/api/chat"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected chat counters %+v", got)
	}
	if got := s.ByIdentifier()["ip2"]; got.Allowed != 1 {
		t.Fatalf("unexpected ip2 counters %+v", got)
	}
}

func TestMemoryStatsStore_IdentifiersOffByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Identifier: "ip1", Route: "/x", Allowed: true})
	if len(s.ByIdentifier()) != 0 {
		t.Fatalf("expected no identifier tracking by default")
	}
}

type failingStats struct{ calls int }

func (f *failingStats) Record(context.Context, domain.StatsEvent) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiStats_ContinuesAfterError(t *testing.T) {
	bad := &failingStats{}
	mem := NewMemoryStatsStore()
	m := MultiStats{bad, nil, mem}

	err := m.Record(context.Background(), domain.StatsEvent{Route: "/x", Allowed: true})
	if err == nil {
		t.Fatalf("expected first error to be returned")
	}
	if bad.calls != 1 || mem.Total().Allowed != 1 {
		t.Fatalf("expected every store to be called")
	}
}

func TestPrometheusStats_LabelsByPolicy(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStats(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	_ = s.Record(ctx, domain.StatsEvent{Route: "/api/chat", Policy: "/api/chat", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Route: "/api/whatever", Policy: domain.DefaultPolicyName, Allowed: false, StoreError: true})

	expected := `
# HELP gateway_ratelimit_decisions_total Rate limit decisions by route and result.
# TYPE gateway_ratelimit_decisions_total counter
gateway_ratelimit_decisions_total{result="allowed",route="/api/chat"} 1
gateway_ratelimit_decisions_total{result="denied",route="default"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "gateway_ratelimit_decisions_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if got := testutil.ToFloat64(s.storeErrors.WithLabelValues(domain.DefaultPolicyName)); got != 1 {
		t.Fatalf("expected 1 store error, got %v", got)
	}

	if _, err := NewPrometheusStats(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
