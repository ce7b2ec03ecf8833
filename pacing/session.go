package pacing

import (
	"context"
	"errors"
)

type SessionState int

const (
	Idle SessionState = iota
	Active
	// Blocked: teto de rodadas atingido. A sessão ainda pode ser encerrada.
	Blocked
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

var (
	ErrSessionActive    = errors.New("pacing: session already started")
	ErrSessionNotActive = errors.New("pacing: no active session")
)

// Verdict resume um passo da sessão. Reason diz qual check negou.
type Verdict struct {
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
	Remaining   int    `json:"remaining,omitempty"`
	WaitMinutes int    `json:"waitMinutes,omitempty"`
	Message     string `json:"message,omitempty"`
}

const (
	ReasonDaily    = "daily_limit"
	ReasonCooldown = "cooldown"
	ReasonRounds   = "round_limit"
	ReasonAPIBurst = "api_burst"
)

// Session é a máquina de estados de uma sessão de estudo:
// Idle -> Start -> Active -> BeginRound... -> (Blocked) -> End -> Idle.
// Não é segura para uso concorrente.
type Session struct {
	l      *Limiter
	state  SessionState
	rounds int
}

func (l *Limiter) NewSession() *Session { return &Session{l: l} }

// ResumeSession recria uma sessão ativa com rounds rodadas já feitas
// (o contador de rodadas não é persistido).
func (l *Limiter) ResumeSession(rounds int) *Session {
	s := &Session{l: l, state: Active, rounds: rounds}
	if rounds >= l.cfg.MaxRoundsPerSession {
		s.state = Blocked
	}
	return s
}

func (s *Session) State() SessionState { return s.state }
func (s *Session) Rounds() int         { return s.rounds }

// Start exige teto diário e cooldown livres.
func (s *Session) Start(ctx context.Context) (Verdict, error) {
	if s.state != Idle {
		return Verdict{}, ErrSessionActive
	}

	daily := s.l.CheckDailyLimit(ctx)
	if !daily.Allowed {
		return Verdict{Reason: ReasonDaily, Message: daily.Message}, nil
	}
	cd := s.l.CheckCooldown(ctx)
	if !cd.Allowed {
		return Verdict{Reason: ReasonCooldown, WaitMinutes: cd.WaitMinutes, Message: cd.Message}, nil
	}

	s.state = Active
	s.rounds = 0
	return Verdict{Allowed: true, Remaining: daily.Remaining}, nil
}

// BeginRound checa rodadas e rajada; se liberar, registra a chamada à API
// antes do disparo. Negação por rajada é transitória, a sessão segue ativa.
func (s *Session) BeginRound(ctx context.Context) (Verdict, error) {
	switch s.state {
	case Idle:
		return Verdict{}, ErrSessionNotActive
	case Blocked:
		r := s.l.CheckRoundLimit(s.rounds)
		return Verdict{Reason: ReasonRounds, Message: r.Message}, nil
	}

	rounds := s.l.CheckRoundLimit(s.rounds)
	if !rounds.Allowed {
		s.state = Blocked
		return Verdict{Reason: ReasonRounds, Message: rounds.Message}, nil
	}
	api := s.l.CheckAPIRateLimit(ctx)
	if !api.Allowed {
		return Verdict{Reason: ReasonAPIBurst, Message: api.Message}, nil
	}

	s.l.RecordAPICall(ctx)
	s.rounds++
	return Verdict{Allowed: true, Remaining: rounds.Remaining - 1}, nil
}

// End grava o fim da sessão e conta a sessão no dia.
func (s *Session) End(ctx context.Context) error {
	if s.state == Idle {
		return ErrSessionNotActive
	}
	s.l.RecordSessionEnd(ctx)
	s.l.IncrementSessionCount(ctx)
	s.state = Idle
	s.rounds = 0
	return nil
}
