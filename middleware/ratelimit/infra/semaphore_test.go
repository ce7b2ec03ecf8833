package infra

import (
	"context"
	"testing"
	"time"
)

func TestSemaphorePool_BlocksUntilRelease(t *testing.T) {
	p := NewSemaphorePool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if p.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", p.InFlight())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	release() // segunda chamada não pode liberar vaga extra
	if p.InFlight() != 0 {
		t.Fatalf("expected 0 in flight, got %d", p.InFlight())
	}

	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire after release")
	}
	r2()
}
