package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"learn-gateway/middleware/ratelimit/domain"
)

func TestParsePolicy_OverridesAndKeepsBuiltins(t *testing.T) {
	p, err := ParsePolicy([]byte(`
default:
  max_requests: 100
  window: 30s
routes:
  /api/chat:
    max_requests: 5
    window: 10s
  /api/transcribe:
    max_requests: 2
    window: 1m
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Default != (domain.RouteLimit{MaxRequests: 100, Window: 30 * time.Second}) {
		t.Fatalf("unexpected default %+v", p.Default)
	}
	if got := p.Resolve("/api/chat"); got.MaxRequests != 5 || got.Window != 10*time.Second {
		t.Fatalf("unexpected chat limit %+v", got)
	}
	if got := p.Resolve("/api/transcribe"); got.MaxRequests != 2 {
		t.Fatalf("unexpected transcribe limit %+v", got)
	}
	if got := p.Resolve("/api/generate-checklist"); got.MaxRequests != 10 {
		t.Fatalf("builtin route should survive, got %+v", got)
	}
}

func TestParsePolicy_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad window": "routes:\n  /api/chat:\n    max_requests: 5\n    window: soon\n",
		"zero max":   "default:\n  max_requests: 0\n  window: 1m\n",
		"bad yaml":   "routes: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParsePolicy_ZeroMaxIsInvalidLimit(t *testing.T) {
	_, err := ParsePolicy([]byte("default:\n  max_requests: 0\n  window: 1m\n"))
	if !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("routes:\n  /api/chat:\n    max_requests: 7\n    window: 1m\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Resolve("/api/chat").MaxRequests != 7 {
		t.Fatalf("expected override from file")
	}

	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
