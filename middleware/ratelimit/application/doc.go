// Package application contém os casos de uso do rate limit e do limite de
// concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Check(ctx, identifier, route) retorna um Outcome (allow/deny,
// remaining, reset, fail-open) e ConcurrencyService.Acquire reserva uma vaga no upstream.
package application
