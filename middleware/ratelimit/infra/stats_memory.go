package infra

import (
	"context"
	"sync"

	"learn-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed     int64 `json:"allowed"`
	Denied      int64 `json:"denied"`
	StoreErrors int64 `json:"storeErrors"`
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.StoreError {
		c.StoreErrors++
	}
}

// MemoryStatsStore acumula decisões em memória, por rota e (opcionalmente)
// por identificador. Útil para testes e desenvolvimento.
//
// Não faz expiração: com trackIdentifiers ligado a memória cresce com o número de IPs.
type MemoryStatsStore struct {
	mu           sync.Mutex
	total        Counters
	byRoute      map[string]Counters
	byIdentifier map[string]Counters

	trackIdentifiers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentifiers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentifiers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:      make(map[string]Counters),
		byIdentifier: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	route := routeLabel(ev)
	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c

	if s.trackIdentifiers {
		k := s.byIdentifier[ev.Identifier]
		k.add(ev)
		s.byIdentifier[ev.Identifier] = k
	}
	return nil
}

// routeLabel prefere a entrada de política ao path cru, que é aberto a qualquer
// /api/* e cresceria sem limite.
func routeLabel(ev domain.StatsEvent) string {
	if ev.Policy != "" {
		return ev.Policy
	}
	return ev.Route
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByIdentifier() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byIdentifier)
}

func copyCounters(in map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MultiStats repassa o evento para todos os stores; devolve o primeiro erro
// mas não interrompe os demais.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
