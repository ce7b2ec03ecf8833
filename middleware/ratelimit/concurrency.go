package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Log            *zap.Logger
}

// ConcurrencyMiddleware limita requests simultâneos ao upstream.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return ConcurrencyWith(application.ConcurrencyService{
		Pool:           infra.NewSemaphorePool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}, opts)
}

// ConcurrencyWith usa um ConcurrencyService já montado (o gateway compartilha
// o mesmo pool com o monitoramento).
func ConcurrencyWith(svc application.ConcurrencyService, opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if errors.Is(err, application.ErrNoSlot) {
					opts.Log.Warn("upstream busy, rejecting request",
						zap.String("route", r.URL.Path),
						zap.Int("in_flight", svc.InFlight()))
				}
				writeJSON(w, opts.RejectStatus, errorBody{
					Error:   "Service busy",
					Message: "Too many concurrent requests. Please try again shortly.",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
