package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learn-gateway/middleware/ratelimit"
	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/domain"
	"learn-gateway/middleware/ratelimit/infra"
	"learn-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Upstream de mentira para rodar o gateway localmente: responde /api/chat e
// /api/generate-checklist com JSON fixo. Com EMBED_LIMITER=true aplica o
// rate limit direto no servidor, sem gateway na frente.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(ratelimit.Recoverer(logger))

	if os.Getenv("EMBED_LIMITER") == "true" {
		store := infra.NewMemoryStore(infra.WithStoreLogger(logger))
		store.StartJanitor(ctx)
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Service:             application.NewService(store, domain.DefaultPolicy(), logger),
			KeyFn:               ratelimit.DefaultKeyFunc(true),
			Log:                 logger,
			AddRateLimitHeaders: true,
		}))
	}

	r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"reply":    "Nice explanation! Can you give a concrete example of that idea?",
			"provider": "example",
			"latency":  delay(r),
		})
	})
	r.Post("/api/generate-checklist", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"checklist": []map[string]any{
				{"id": 1, "item": "Define the concept in one sentence", "covered": false},
				{"id": 2, "item": "Give a real-world example", "covered": false},
				{"id": 3, "item": "Explain a common misconception", "covered": false},
			},
			"provider": "example",
			"latency":  delay(r),
		})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example upstream listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// delay simula a latência do provedor de IA (?delay=800ms).
func delay(r *http.Request) string {
	d, err := time.ParseDuration(r.URL.Query().Get("delay"))
	if err != nil || d <= 0 {
		return "0s"
	}
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
	return d.String()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
