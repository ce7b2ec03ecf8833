package main

import (
	"net/http"
	"time"

	"learn-gateway/middleware/perf"
	"learn-gateway/middleware/ratelimit"
	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/domain"
	"learn-gateway/middleware/ratelimit/infra"
	"learn-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type routerDeps struct {
	log         *zap.Logger
	limiter     *application.Service
	stats       domain.StatsStore
	decisions   *infra.MemoryStatsStore
	concurrency *application.ConcurrencyService
	concOpts    ratelimit.ConcurrencyOptions
	perf        *perf.Monitor
	registry    *prometheus.Registry // nil desliga /metrics
	upstream    http.Handler

	rateEnabled bool
	trustProxy  bool
	addHeaders  bool
	adminToken  string
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accessLog(d.log))
	r.Use(ratelimit.Recoverer(d.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if d.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry}))
	}

	r.Route("/api", func(r chi.Router) {
		if d.rateEnabled {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Service:             d.limiter,
				Stats:               d.stats,
				KeyFn:               ratelimit.DefaultKeyFunc(d.trustProxy),
				Log:                 d.log,
				AddRateLimitHeaders: d.addHeaders,
			}))
		}

		r.Method(http.MethodGet, "/monitoring", ratelimit.MonitoringHandler(ratelimit.MonitoringOptions{
			Service:     d.limiter,
			Perf:        d.perf,
			Concurrency: d.concurrency,
			Decisions:   d.decisions,
			Log:         d.log,
		}))

		upstream := measure(d.perf, d.upstream)
		if d.concurrency != nil {
			upstream = ratelimit.ConcurrencyWith(*d.concurrency, d.concOpts)(upstream)
		}
		r.Handle("/*", upstream)
	})

	if d.adminToken != "" {
		r.Route("/admin/ratelimit", func(r chi.Router) {
			r.Use(ratelimit.RequireBearer(d.adminToken))
			r.Method(http.MethodPost, "/reset", ratelimit.ResetHandler(d.limiter, d.log))
			r.Method(http.MethodPost, "/clear", ratelimit.ClearHandler(d.limiter, d.log))
		})
	}
	return r
}

// measure grava a duração de cada chamada ao upstream no perf.Monitor, agrupada
// pela entrada de política (path cadastrado ou "default").
func measure(m *perf.Monitor, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := "upstream:" + domain.DefaultPolicyName
		if out, ok := ratelimit.OutcomeFromContext(r.Context()); ok {
			name = "upstream:" + out.Policy
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		m.Record(name, time.Since(start), ww.Status() >= http.StatusInternalServerError)
	})
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestid.FromContext(r.Context())))
		})
	}
}
