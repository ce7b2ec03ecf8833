package infra

import (
	"context"
	"sync/atomic"

	"learn-gateway/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

type semaphorePool struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewSemaphorePool cria um pool de `max` vagas sobre x/sync/semaphore.
func NewSemaphorePool(max int) domain.SlotPool {
	return &semaphorePool{sem: semaphore.NewWeighted(int64(max))}
}

func (p *semaphorePool) Acquire(ctx context.Context) (func(), bool) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	p.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}
	}, true
}

func (p *semaphorePool) InFlight() int { return int(p.inFlight.Load()) }
