package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidLimit = errors.New("invalid route limit")

// DefaultPolicyName identifica o limite genérico em métricas e logs.
const DefaultPolicyName = "default"

// RouteLimit é a política estática de uma rota: MaxRequests por Window.
type RouteLimit struct {
	MaxRequests int
	Window      time.Duration
}

func (l RouteLimit) Validate() error {
	if l.MaxRequests <= 0 {
		return fmt.Errorf("%w: max_requests must be > 0, got %d", ErrInvalidLimit, l.MaxRequests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidLimit, l.Window)
	}
	return nil
}

// Policy mapeia o path exato da rota para seu limite.
// Rotas não cadastradas caem em Default (sem pattern matching).
type Policy struct {
	Default RouteLimit
	Routes  map[string]RouteLimit
}

// DefaultPolicy reproduz a tabela embutida: conversa é mais permissiva que
// geração estruturada, e o resto usa um teto genérico maior.
func DefaultPolicy() Policy {
	return Policy{
		Default: RouteLimit{MaxRequests: 60, Window: time.Minute},
		Routes: map[string]RouteLimit{
			"/api/chat":               {MaxRequests: 30, Window: time.Minute},
			"/api/generate-checklist": {MaxRequests: 10, Window: time.Minute},
		},
	}
}

// Resolve devolve o limite da rota ou o Default.
func (p Policy) Resolve(route string) RouteLimit {
	l, _ := p.Lookup(route)
	return l
}

// Lookup é Resolve devolvendo também o nome da entrada usada.
func (p Policy) Lookup(route string) (RouteLimit, string) {
	if l, ok := p.Routes[route]; ok {
		return l, route
	}
	return p.Default, DefaultPolicyName
}

func (p Policy) Validate() error {
	if err := p.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	for route, l := range p.Routes {
		if route == "" {
			return fmt.Errorf("%w: empty route path", ErrInvalidLimit)
		}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("route %q: %w", route, err)
		}
	}
	return nil
}
