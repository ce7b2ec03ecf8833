package application

import (
	"context"
	"errors"
	"time"

	"learn-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que o timeout de aquisição estourou com o pool cheio.
var ErrNoSlot = errors.New("no upstream slot available")

// ConcurrencyService aplica o teto de chamadas simultâneas ao upstream de IA,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx do chamador encerrar.
//   - AcquireTimeout > 0: espera no máximo esse tempo.
//
// Erros: ErrNoSlot quando o timeout próprio estoura; ctx.Err() quando o
// chamador desistiu antes (cliente desconectou).
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoSlot
}

func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InFlight()
}
