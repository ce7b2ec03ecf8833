package domain

import (
	"math"
	"time"
)

// Admit aplica a regra de janela fixa sobre a entrada atual de uma chave.
//
// Não tem estado nem lock: quem chama (o store) garante a atomicidade
// entre ler `cur` e gravar a entrada devolvida.
//
//   - sem entrada ou janela expirada: nova janela com Count=1
//   - Count >= MaxRequests: bloqueia, entrada intacta
//   - caso contrário: incrementa
func Admit(cur WindowEntry, exists bool, now time.Time, limit RouteLimit) (WindowEntry, Decision) {
	if !exists || cur.Expired(now) {
		next := WindowEntry{Count: 1, ResetAt: now.Add(limit.Window)}
		return next, Decision{
			Allowed:   true,
			Limit:     limit.MaxRequests,
			Remaining: limit.MaxRequests - 1,
			ResetAt:   next.ResetAt,
		}
	}

	if cur.Count >= limit.MaxRequests {
		return cur, Decision{
			Allowed:    false,
			Limit:      limit.MaxRequests,
			Remaining:  0,
			ResetAt:    cur.ResetAt,
			RetryAfter: RetryAfter(now, cur.ResetAt),
		}
	}

	cur.Count++
	return cur, Decision{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests - cur.Count,
		ResetAt:   cur.ResetAt,
	}
}

// RetryAfter arredonda para cima o tempo até o reset, em segundos inteiros,
// com mínimo de 1s (Retry-After: 0 faz cliente martelar de novo na hora).
func RetryAfter(now, resetAt time.Time) time.Duration {
	secs := math.Ceil(resetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
