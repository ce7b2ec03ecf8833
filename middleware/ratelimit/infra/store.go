package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"learn-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// MemoryStore é o store de janela fixa em memória, com um lock global
// e limpeza periódica fora do caminho do request.
//
// Deve ser criado uma única vez por processo e passado por referência ao
// middleware: recriar por request zera todos os contadores.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]domain.WindowEntry
	now          func() time.Time
	cleanupEvery time.Duration
	log          *zap.Logger
}

type StoreOption func(*MemoryStore)

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.log = l
		}
	}
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]domain.WindowEntry),
		now:          time.Now,
		cleanupEvery: 5 * time.Minute,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Hit implementa domain.WindowStore. Leitura, decisão e escrita acontecem
// sob o mesmo lock, então não há undercount com requests simultâneos.
func (s *MemoryStore) Hit(_ context.Context, key domain.Key, limit domain.RouteLimit) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur, ok := s.entries[key]
	next, dec := domain.Admit(cur, ok, now, limit)
	if dec.Allowed {
		s.entries[key] = next
	}
	return dec, nil
}

func (s *MemoryStore) Reset(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Key]domain.WindowEntry)
	return nil
}

// Cleanup remove entradas cuja janela já terminou.
func (s *MemoryStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for k, ent := range s.entries {
		if ent.Expired(now) {
			delete(s.entries, k)
			evicted++
		}
	}
	return evicted, nil
}

// Snapshot devolve uma cópia ordenada por chave; não altera nada.
func (s *MemoryStore) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	out := make([]domain.SnapshotEntry, 0, len(s.entries))
	for k, ent := range s.entries {
		out = append(out, domain.NewSnapshotEntry(k, ent))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return domain.Snapshot{TotalEntries: len(out), Entries: out}, nil
}

// StartJanitor inicia uma goroutine que limpa janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, _ := s.Cleanup(ctx)
				if n > 0 {
					s.log.Debug("rate limit janitor evicted entries", zap.Int("evicted", n))
				}
			}
		}
	}()
}
