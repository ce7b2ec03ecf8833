package ratelimit

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"learn-gateway/middleware/perf"
	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/domain"
	"learn-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

// MaxMonitoringEntries limita o tamanho da resposta de monitoramento.
const MaxMonitoringEntries = 50

type monitoringBody struct {
	RateLimiting rateLimitingBody      `json:"rateLimiting"`
	Performance  map[string]perf.Stats `json:"performance"`
	Decisions    *decisionsBody        `json:"decisions,omitempty"`
	InFlight     *int                  `json:"inFlight,omitempty"`
	Timestamp    string                `json:"timestamp"`
}

type rateLimitingBody struct {
	ActiveEntries int                    `json:"activeEntries"`
	Entries       []domain.SnapshotEntry `json:"entries"`
}

type decisionsBody struct {
	Total   infra.Counters            `json:"total"`
	ByRoute map[string]infra.Counters `json:"byRoute"`
}

type MonitoringOptions struct {
	Service     *application.Service
	Perf        *perf.Monitor
	Concurrency *application.ConcurrencyService
	Decisions   *infra.MemoryStatsStore
	Log         *zap.Logger
	Now         func() time.Time
}

// MonitoringHandler responde o snapshot do limiter mais o resumo de performance.
func MonitoringHandler(opts MonitoringOptions) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := opts.Service.Stats(r.Context())
		if err != nil {
			opts.Log.Error("monitoring snapshot failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to get monitoring data"})
			return
		}

		entries := snap.Entries
		if len(entries) > MaxMonitoringEntries {
			entries = entries[:MaxMonitoringEntries]
		}
		if entries == nil {
			entries = []domain.SnapshotEntry{}
		}

		body := monitoringBody{
			RateLimiting: rateLimitingBody{ActiveEntries: snap.TotalEntries, Entries: entries},
			Performance:  map[string]perf.Stats{},
			Timestamp:    opts.Now().UTC().Format(time.RFC3339Nano),
		}
		if opts.Perf != nil {
			body.Performance = opts.Perf.Summary()
		}
		if opts.Decisions != nil {
			body.Decisions = &decisionsBody{Total: opts.Decisions.Total(), ByRoute: opts.Decisions.ByRoute()}
		}
		if opts.Concurrency != nil {
			n := opts.Concurrency.InFlight()
			body.InFlight = &n
		}
		writeJSON(w, http.StatusOK, body)
	})
}

// RequireBearer aceita só "Authorization: Bearer <token>". Token vazio bloqueia tudo.
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type adminResult struct {
	Status     string `json:"status"`
	Identifier string `json:"identifier,omitempty"`
	Route      string `json:"route,omitempty"`
}

// ResetHandler zera o contador de ?identifier=&route=.
func ResetHandler(svc *application.Service, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("identifier"))
		route := strings.TrimSpace(r.URL.Query().Get("route"))
		if id == "" || route == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Error:   "Bad request",
				Message: "identifier and route are required",
			})
			return
		}

		if err := svc.Reset(r.Context(), id, route); err != nil {
			log.Error("rate limit reset failed", zap.String("identifier", id), zap.String("route", route), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Reset failed"})
			return
		}
		log.Info("rate limit reset", zap.String("identifier", id), zap.String("route", route))
		writeJSON(w, http.StatusOK, adminResult{Status: "reset", Identifier: id, Route: route})
	})
}

// ClearHandler apaga todos os contadores.
func ClearHandler(svc *application.Service, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearAll(r.Context()); err != nil {
			log.Error("rate limit clear failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Clear failed"})
			return
		}
		log.Info("rate limit cleared")
		writeJSON(w, http.StatusOK, adminResult{Status: "cleared"})
	})
}
