package application

import (
	"context"
	"time"

	"learn-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service concentra a regra de aplicação do rate limit: resolve a política
// da rota, consulta o store e decide. Não sabe nada sobre HTTP.
type Service struct {
	Store  domain.WindowStore
	Policy domain.Policy
	Log    *zap.Logger
	Now    func() time.Time

	// errLog limita o log de falhas do store a 1/s, senão uma queda do Redis
	// vira uma linha de log por request.
	errLog *rate.Sometimes
}

// NewService monta o Service com defaults para log e relógio.
func NewService(store domain.WindowStore, policy domain.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Store:  store,
		Policy: policy,
		Log:    log,
		Now:    time.Now,
		errLog: &rate.Sometimes{First: 1, Interval: time.Second},
	}
}

// Outcome é a decisão mais o contexto que o adapter HTTP e as estatísticas usam.
type Outcome struct {
	domain.Decision
	Key    domain.Key
	Policy string
	// StoreError: o store falhou e a decisão foi fail-open.
	StoreError bool
}

// Check é o checkLimit(identifier, route).
func (s *Service) Check(ctx context.Context, identifier, route string) Outcome {
	if identifier == "" {
		identifier = domain.UnknownIdentifier
	}
	if route == "" {
		// "/" mantém a chave no formato "id:/rota" que domain.ParseKey entende
		route = "/"
	}

	limit, policy := s.Policy.Lookup(route)
	key := domain.Key{Identifier: identifier, Route: route}
	out := Outcome{Key: key, Policy: policy}

	if s.Store == nil {
		out.Decision = s.openDecision(limit)
		return out
	}

	dec, err := s.Store.Hit(ctx, key, limit)
	if err != nil {
		s.throttled(func() {
			s.Log.Error("rate limit store failed, allowing request",
				zap.String("route", route),
				zap.String("policy", policy),
				zap.Error(err))
		})
		out.Decision = s.openDecision(limit)
		out.StoreError = true
		return out
	}

	out.Decision = dec
	return out
}

func (s *Service) throttled(f func()) {
	if s.errLog == nil || s.Log == nil {
		return
	}
	s.errLog.Do(f)
}

// openDecision é a resposta fail-open: permite e reporta a janela cheia.
func (s *Service) openDecision(limit domain.RouteLimit) domain.Decision {
	return domain.Decision{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests,
		ResetAt:   s.now().Add(limit.Window),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Reset e ClearAll são operações administrativas; só devem ser expostas
// para chamadores confiáveis.
func (s *Service) Reset(ctx context.Context, identifier, route string) error {
	return s.Store.Reset(ctx, domain.Key{Identifier: identifier, Route: route})
}

func (s *Service) ClearAll(ctx context.Context) error {
	return s.Store.ClearAll(ctx)
}

func (s *Service) Stats(ctx context.Context) (domain.Snapshot, error) {
	return s.Store.Snapshot(ctx)
}
