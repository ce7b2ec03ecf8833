package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"strings"
	"time"
)

// UnknownIdentifier é usado quando nenhuma origem do request pôde ser extraída.
// Todos os clientes não identificados compartilham esse bucket.
const UnknownIdentifier = "unknown"

// Key identifica um par (cliente, rota) dentro do store.
type Key struct {
	Identifier string
	Route      string
}

// String devolve a forma "identifier:route" usada como chave de map/Redis.
func (k Key) String() string { return k.Identifier + ":" + k.Route }

// ParseKey desfaz String. Rotas começam com "/", então o separador é o último ":/"
// (identificadores IPv6 também contêm ":").
func ParseKey(s string) (Key, bool) {
	i := strings.LastIndex(s, ":/")
	if i < 0 {
		return Key{}, false
	}
	return Key{Identifier: s[:i], Route: s[i+1:]}, true
}

// WindowEntry é o contador de uma janela fixa para uma Key.
//
// Quando now >= ResetAt a entrada está expirada e deve ser substituída, nunca incrementada.
type WindowEntry struct {
	Count   int
	ResetAt time.Time
}

// Expired informa se a janela já terminou em now.
func (e WindowEntry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// Decision é o resultado de um checkLimit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// WindowStore guarda os contadores de janela fixa.
//
// Hit precisa ser atômico por chave: dois Hits concorrentes na mesma Key
// nunca podem admitir mais que limit.MaxRequests dentro da mesma janela.
type WindowStore interface {
	Hit(ctx context.Context, key Key, limit RouteLimit) (Decision, error)
	Reset(ctx context.Context, key Key) error
	ClearAll(ctx context.Context) error
	Cleanup(ctx context.Context) (evicted int, err error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// SnapshotEntry é uma linha do snapshot operacional.
type SnapshotEntry struct {
	Key        string    `json:"key"`
	Identifier string    `json:"identifier"`
	Route      string    `json:"route"`
	Count      int       `json:"count"`
	ResetAt    time.Time `json:"-"`
	ResetTime  int64     `json:"resetTime"`
}

// Snapshot é uma leitura sem efeitos colaterais do store.
type Snapshot struct {
	TotalEntries int             `json:"totalEntries"`
	Entries      []SnapshotEntry `json:"entries"`
}

// NewSnapshotEntry monta a entrada preenchendo o reset em milissegundos.
func NewSnapshotEntry(key Key, e WindowEntry) SnapshotEntry {
	return SnapshotEntry{
		Key:        key.String(),
		Identifier: key.Identifier,
		Route:      key.Route,
		Count:      e.Count,
		ResetAt:    e.ResetAt,
		ResetTime:  e.ResetAt.UnixMilli(),
	}
}
