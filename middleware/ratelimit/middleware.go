package ratelimit

import (
	"context"
	"net/http"
	"time"

	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/domain"
	"learn-gateway/middleware/requestid"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	rejectError   = "Rate limit exceeded"
	rejectMessage = "Too many requests. Please try again later."
)

type Options struct {
	Service *application.Service
	Stats   domain.StatsStore
	KeyFn   KeyFunc
	Log     *zap.Logger

	RejectStatus int
	// AddRateLimitHeaders controla X-RateLimit-* nas respostas permitidas.
	// Respostas bloqueadas sempre levam os headers.
	AddRateLimitHeaders bool
}

type outcomeKey struct{}

// OutcomeFromContext devolve a decisão tomada para o request, se houver.
func OutcomeFromContext(ctx context.Context) (application.Outcome, bool) {
	out, ok := ctx.Value(outcomeKey{}).(application.Outcome)
	return out, ok
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	// um ataque gera um 429 por request; o log fica nas 10 primeiras e depois 1/s
	denyLog := &rate.Sometimes{First: 10, Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.KeyFn(r)
			route := r.URL.Path

			out := opts.Service.Check(r.Context(), id, route)
			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Identifier: out.Key.Identifier,
					Route:      route,
					Policy:     out.Policy,
					Method:     r.Method,
					Allowed:    out.Allowed,
					StoreError: out.StoreError,
					At:         time.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					opts.Log.Debug("rate limit stats record failed", zap.Error(err))
				}
			}

			if !out.Allowed {
				setLimitHeaders(w, out.Decision)
				retry := int(out.RetryAfter / time.Second)
				w.Header().Set("Retry-After", formatInt(retry))
				denyLog.Do(func() {
					opts.Log.Warn("rate limit exceeded",
						zap.String("identifier", out.Key.Identifier),
						zap.String("route", route),
						zap.String("policy", out.Policy),
						zap.Int("retry_after_s", retry),
						zap.String("request_id", requestid.FromContext(r.Context())))
				})
				writeJSON(w, opts.RejectStatus, rejectBody{
					Error:      rejectError,
					Message:    rejectMessage,
					RetryAfter: retry,
				})
				return
			}

			if opts.AddRateLimitHeaders {
				setLimitHeaders(w, out.Decision)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), outcomeKey{}, out)))
		})
	}
}

// X-RateLimit-Reset vai em epoch milissegundos.
func setLimitHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	h.Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.UnixMilli()))
}
