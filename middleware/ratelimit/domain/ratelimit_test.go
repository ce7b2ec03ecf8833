package domain

import "testing"

func TestParseKey_RoundTrip(t *testing.T) {
	keys := []Key{
		{Identifier: "203.0.113.7", Route: "/api/chat"},
		{Identifier: "203.0.113.7", Route: "/"},
		{Identifier: "2001:db8::1", Route: "/api/chat"},
		{Identifier: UnknownIdentifier, Route: "/"},
	}
	for _, k := range keys {
		got, ok := ParseKey(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKey(%q) = %+v ok=%v, want %+v", k.String(), got, ok, k)
		}
	}
}

func TestParseKey_RejectsRouteWithoutSlash(t *testing.T) {
	for _, s := range []string{"", "ip1", "ip1:default"} {
		if k, ok := ParseKey(s); ok {
			t.Fatalf("expected %q to be rejected, got %+v", s, k)
		}
	}
}
