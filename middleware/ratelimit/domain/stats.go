package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Route/Method são strings genéricas, sem depender de net/http.
//
// Observação: cuidado com cardinalidade (ex.: salvar Identifier sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Identifier string
	Route      string
	// Policy é a entrada da tabela que casou: o próprio path ou DefaultPolicyName.
	Policy string
	Method string

	Allowed bool
	// StoreError indica que o store falhou e a decisão foi fail-open.
	StoreError bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
