// Package pacing é o limiter de ritmo do lado do cliente: teto diário de sessões,
// teto de rodadas por sessão, cooldown entre sessões e teto de rajada de chamadas à API.
//
// Roda antes de qualquer chamada de rede. Não é fronteira de segurança (o estado
// fica em storage controlado pelo cliente); quem bloqueia de verdade é o limiter
// do gateway.
package pacing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// DayLayout é o formato da chave de dia em DailySessionCounts (data local).
const DayLayout = "2006-01-02"

type Config struct {
	MaxSessionsPerDay   int
	MaxRoundsPerSession int
	Cooldown            time.Duration

	// Rajada: no máximo MaxAPICalls dentro de APIWindow.
	MaxAPICalls int
	APIWindow   time.Duration
	// MaxStoredCalls limita o histórico gravado, independente do filtro de janela.
	MaxStoredCalls int

	// RetentionDays: contagens diárias mais antigas saem no Cleanup.
	RetentionDays int
}

func DefaultConfig() Config {
	return Config{
		MaxSessionsPerDay:   20,
		MaxRoundsPerSession: 10,
		Cooldown:            2 * time.Minute,
		MaxAPICalls:         15,
		APIWindow:           60 * time.Second,
		MaxStoredCalls:      20,
		RetentionDays:       7,
	}
}

// State é o estado persistido de um cliente.
type State struct {
	DailySessionCounts map[string]int `json:"dailySessionCounts"`
	LastSessionEnd     *time.Time     `json:"lastSessionEnd,omitempty"`
	APICallTimestamps  []time.Time    `json:"apiCallTimestamps"`
}

// Result é a resposta de um check. Negar não é erro.
type Result struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

type CooldownResult struct {
	Allowed     bool   `json:"allowed"`
	WaitMinutes int    `json:"waitMinutes,omitempty"`
	Message     string `json:"message,omitempty"`
}

type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Limiter)

// WithConfig substitui os limites; campos <= 0 mantêm o padrão.
func WithConfig(c Config) Option {
	return func(l *Limiter) {
		def := l.cfg
		if c.MaxSessionsPerDay > 0 {
			def.MaxSessionsPerDay = c.MaxSessionsPerDay
		}
		if c.MaxRoundsPerSession > 0 {
			def.MaxRoundsPerSession = c.MaxRoundsPerSession
		}
		if c.Cooldown > 0 {
			def.Cooldown = c.Cooldown
		}
		if c.MaxAPICalls > 0 {
			def.MaxAPICalls = c.MaxAPICalls
		}
		if c.APIWindow > 0 {
			def.APIWindow = c.APIWindow
		}
		if c.MaxStoredCalls > 0 {
			def.MaxStoredCalls = c.MaxStoredCalls
		}
		if c.RetentionDays > 0 {
			def.RetentionDays = c.RetentionDays
		}
		l.cfg = def
	}
}

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		cfg:   DefaultConfig(),
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Config() Config { return l.cfg }

func (l *Limiter) CheckDailyLimit(ctx context.Context) Result {
	today := l.now().Format(DayLayout)
	n := l.sessionCounts(ctx)[today]

	if n >= l.cfg.MaxSessionsPerDay {
		return Result{
			Allowed: false,
			Message: fmt.Sprintf("Daily limit reached (%d sessions). Try again tomorrow! 🌙", l.cfg.MaxSessionsPerDay),
		}
	}
	return Result{Allowed: true, Remaining: l.cfg.MaxSessionsPerDay - n}
}

// CheckRoundLimit compara as rodadas já feitas na sessão atual, que ficam com o chamador.
func (l *Limiter) CheckRoundLimit(current int) Result {
	if current >= l.cfg.MaxRoundsPerSession {
		return Result{
			Allowed: false,
			Message: fmt.Sprintf("Session limit reached (%d rounds). Time to wrap up! 🎯", l.cfg.MaxRoundsPerSession),
		}
	}
	return Result{Allowed: true, Remaining: l.cfg.MaxRoundsPerSession - current}
}

func (l *Limiter) CheckCooldown(ctx context.Context) CooldownResult {
	last, ok := l.lastSessionEnd(ctx)
	if !ok {
		return CooldownResult{Allowed: true}
	}

	elapsed := l.now().Sub(last)
	if elapsed >= l.cfg.Cooldown {
		return CooldownResult{Allowed: true}
	}

	wait := int(math.Ceil((l.cfg.Cooldown - elapsed).Minutes()))
	plural := ""
	if wait > 1 {
		plural = "s"
	}
	return CooldownResult{
		Allowed:     false,
		WaitMinutes: wait,
		Message:     fmt.Sprintf("Please wait %d minute%s before starting a new session. Take a break! ☕", wait, plural),
	}
}

// CheckAPIRateLimit conta as chamadas dentro de APIWindow. A lista filtrada
// é regravada sempre que algo saiu, mesmo quando a chamada só consulta.
func (l *Limiter) CheckAPIRateLimit(ctx context.Context) Result {
	all := l.apiTimestamps(ctx)
	recent := l.withinWindow(all)
	if len(recent) != len(all) {
		l.save(ctx, KeyAPITimestamps, encodeMillis(recent))
	}

	if len(recent) >= l.cfg.MaxAPICalls {
		return Result{
			Allowed: false,
			Message: "Whoa, slow down! ⚡ You're talking too fast for the AI.",
		}
	}
	return Result{Allowed: true, Remaining: l.cfg.MaxAPICalls - len(recent)}
}

// RecordAPICall registra o disparo (não a resposta) e guarda só os MaxStoredCalls mais recentes.
func (l *Limiter) RecordAPICall(ctx context.Context) {
	ts := append(l.apiTimestamps(ctx), l.now())
	if n := len(ts) - l.cfg.MaxStoredCalls; n > 0 {
		ts = ts[n:]
	}
	l.save(ctx, KeyAPITimestamps, encodeMillis(ts))
}

func (l *Limiter) IncrementSessionCount(ctx context.Context) {
	counts := l.sessionCounts(ctx)
	counts[l.now().Format(DayLayout)]++
	l.save(ctx, KeySessionCounts, counts)
}

func (l *Limiter) RecordSessionEnd(ctx context.Context) {
	l.save(ctx, KeyLastSessionEnd, l.now().UnixMilli())
}

// Cleanup descarta contagens com mais de RetentionDays e repoda as chamadas.
// Chaves de dia que não parseiam também saem.
func (l *Limiter) Cleanup(ctx context.Context) {
	now := l.now()
	cutoff := now.AddDate(0, 0, -l.cfg.RetentionDays)

	kept := make(map[string]int)
	for day, n := range l.sessionCounts(ctx) {
		d, err := time.ParseInLocation(DayLayout, day, now.Location())
		if err != nil || d.Before(cutoff) {
			continue
		}
		kept[day] = n
	}
	l.save(ctx, KeySessionCounts, kept)
	l.save(ctx, KeyAPITimestamps, encodeMillis(l.withinWindow(l.apiTimestamps(ctx))))
}

// State lê tudo de uma vez, para status e debug.
func (l *Limiter) State(ctx context.Context) State {
	s := State{
		DailySessionCounts: l.sessionCounts(ctx),
		APICallTimestamps:  l.apiTimestamps(ctx),
	}
	if t, ok := l.lastSessionEnd(ctx); ok {
		s.LastSessionEnd = &t
	}
	return s
}

func (l *Limiter) withinWindow(ts []time.Time) []time.Time {
	now := l.now()
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if now.Sub(t) < l.cfg.APIWindow {
			out = append(out, t)
		}
	}
	return out
}

func (l *Limiter) sessionCounts(ctx context.Context) map[string]int {
	counts := map[string]int{}
	if !l.load(ctx, KeySessionCounts, &counts) || counts == nil {
		return map[string]int{}
	}
	return counts
}

func (l *Limiter) lastSessionEnd(ctx context.Context) (time.Time, bool) {
	var ms int64
	if !l.load(ctx, KeyLastSessionEnd, &ms) || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (l *Limiter) apiTimestamps(ctx context.Context) []time.Time {
	var ms []int64
	if !l.load(ctx, KeyAPITimestamps, &ms) {
		return nil
	}
	out := make([]time.Time, 0, len(ms))
	for _, m := range ms {
		out = append(out, time.UnixMilli(m))
	}
	return out
}

// load devolve false para ausência, erro de storage ou JSON corrompido.
func (l *Limiter) load(ctx context.Context, key string, v any) bool {
	if l.store == nil {
		return false
	}
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.log.Warn("pacing storage read failed, using defaults", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		l.log.Warn("pacing storage value is corrupt, using defaults", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// save não devolve erro: falha de escrita vira log e o fluxo segue.
func (l *Limiter) save(ctx context.Context, key string, v any) {
	if l.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		l.log.Error("pacing encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		l.log.Warn("pacing storage write failed", zap.String("key", key), zap.Error(err))
	}
}

func encodeMillis(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.UnixMilli()
	}
	return out
}
