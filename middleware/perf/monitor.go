// Package perf guarda as últimas medições de duração por operação e resume
// count/avg/min/max/p95/p99 para o endpoint de monitoramento.
package perf

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxMetrics = 1000
	defaultSlow       = time.Second
)

// Metric é uma medição individual.
type Metric struct {
	Name     string
	Duration time.Duration
	At       time.Time
	Failed   bool
}

// Stats é o resumo de uma operação, em milissegundos.
type Stats struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avgDuration"`
	MinMs float64 `json:"minDuration"`
	MaxMs float64 `json:"maxDuration"`
	P95Ms float64 `json:"p95"`
	P99Ms float64 `json:"p99"`
}

// Monitor mantém um ring buffer com as últimas maxMetrics medições.
type Monitor struct {
	mu   sync.Mutex
	ring []Metric
	next int
	full bool
	slow time.Duration
	log  *zap.Logger
	now  func() time.Time
}

type Option func(*Monitor)

func WithCapacity(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.ring = make([]Metric, n)
		}
	}
}

// WithSlowThreshold define a partir de quando uma operação é logada como lenta.
func WithSlowThreshold(d time.Duration) Option { return func(m *Monitor) { m.slow = d } }

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(opts ...Option) *Monitor {
	m := &Monitor{
		ring: make([]Metric, defaultMaxMetrics),
		slow: defaultSlow,
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record grava uma medição; a mais antiga sai quando o buffer enche.
func (m *Monitor) Record(name string, d time.Duration, failed bool) {
	m.mu.Lock()
	m.ring[m.next] = Metric{Name: name, Duration: d, At: m.now(), Failed: failed}
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	if m.slow > 0 && d > m.slow {
		m.log.Warn("slow operation detected",
			zap.String("operation", name),
			zap.Duration("duration", d),
			zap.Bool("failed", failed))
	}
}

// Measure cronometra fn e grava o resultado, inclusive quando fn falha.
func (m *Monitor) Measure(ctx context.Context, name string, fn func(context.Context) error) error {
	start := m.now()
	err := fn(ctx)
	m.Record(name, m.now().Sub(start), err != nil)
	return err
}

// Metrics devolve as medições de name (todas se name == ""), da mais antiga para a mais nova.
func (m *Monitor) Metrics(name string) []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ordered []Metric
	if m.full {
		ordered = append(ordered, m.ring[m.next:]...)
	}
	ordered = append(ordered, m.ring[:m.next]...)

	if name == "" {
		return ordered
	}
	out := ordered[:0:0]
	for _, mt := range ordered {
		if mt.Name == name {
			out = append(out, mt)
		}
	}
	return out
}

// Stats resume uma operação; ok=false se não houver medições.
func (m *Monitor) Stats(name string) (Stats, bool) {
	return summarize(m.Metrics(name))
}

// Summary resume todas as operações conhecidas.
func (m *Monitor) Summary() map[string]Stats {
	byName := make(map[string][]Metric)
	for _, mt := range m.Metrics("") {
		byName[mt.Name] = append(byName[mt.Name], mt)
	}
	out := make(map[string]Stats, len(byName))
	for name, ms := range byName {
		if st, ok := summarize(ms); ok {
			out[name] = st
		}
	}
	return out
}

func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring = make([]Metric, len(m.ring))
	m.next = 0
	m.full = false
}

func summarize(ms []Metric) (Stats, bool) {
	if len(ms) == 0 {
		return Stats{}, false
	}
	durs := make([]float64, len(ms))
	var sum float64
	for i, mt := range ms {
		durs[i] = float64(mt.Duration) / float64(time.Millisecond)
		sum += durs[i]
	}
	sort.Float64s(durs)

	n := len(durs)
	return Stats{
		Count: n,
		AvgMs: sum / float64(n),
		MinMs: durs[0],
		MaxMs: durs[n-1],
		P95Ms: durs[percentileIndex(n, 0.95)],
		P99Ms: durs[percentileIndex(n, 0.99)],
	}, true
}

// percentileIndex usa floor(n*p), limitado ao último índice.
func percentileIndex(n int, p float64) int {
	i := int(float64(n) * p)
	if i >= n {
		i = n - 1
	}
	return i
}
