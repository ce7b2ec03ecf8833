package pacing

import (
	"context"
	"errors"
)

// ErrNotFound é devolvido por Store.Get quando a chave não existe.
var ErrNotFound = errors.New("pacing: key not found")

// Chaves persistidas. Os valores são JSON.
const (
	KeySessionCounts  = "sessionCounts"
	KeyLastSessionEnd = "lastSessionEnd"
	KeyAPITimestamps  = "api_timestamps"
)

// Store é o armazenamento chave/valor local de um cliente.
//
// Qualquer leitura pode voltar vazia a qualquer momento (storage despejado);
// o Limiter trata isso como "sem estado anterior".
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
