package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"learn-gateway/middleware/perf"
	"learn-gateway/middleware/ratelimit"
	"learn-gateway/middleware/ratelimit/application"
	"learn-gateway/middleware/ratelimit/domain"
	"learn-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := loadEnvFile(); err != nil {
		log.Fatalf("env file error: %v", err)
	}
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	policy := domain.DefaultPolicy()
	if cfg.ratePolicyFile != "" {
		policy, err = infra.LoadPolicyFile(cfg.ratePolicyFile)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	var store domain.WindowStore
	if cfg.rateStore == "redis" {
		store = infra.NewRedisStore(rdb, infra.WithRedisPrefix(cfg.rateRedisPrefix))
	} else {
		mem := infra.NewMemoryStore(
			infra.WithCleanupEvery(cfg.rateCleanupEvery),
			infra.WithStoreLogger(logger.Named("ratelimit")),
		)
		mem.StartJanitor(ctx)
		store = mem
	}
	limiter := application.NewService(store, policy, logger.Named("ratelimit"))

	decisions := infra.NewMemoryStatsStore()
	stats := infra.MultiStats{decisions}
	var registry *prometheus.Registry
	if cfg.metricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := infra.NewPrometheusStats(registry)
		if err != nil {
			return err
		}
		stats = append(stats, prom)
	}
	if cfg.rateStatsEnabled {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackIdentifiers(cfg.rateStatsTrackIdentifiers),
		))
	}

	var conc *application.ConcurrencyService
	if cfg.concurrencyMax > 0 {
		conc = &application.ConcurrencyService{
			Pool:           infra.NewSemaphorePool(cfg.concurrencyMax),
			AcquireTimeout: cfg.concurrencyTimeout,
		}
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h := newRouter(routerDeps{
		log:         logger,
		limiter:     limiter,
		stats:       stats,
		decisions:   decisions,
		concurrency: conc,
		concOpts:    ratelimit.ConcurrencyOptions{Log: logger.Named("concurrency")},
		perf:        perf.New(perf.WithLogger(logger.Named("perf")), perf.WithSlowThreshold(cfg.slowThreshold)),
		registry:    registry,
		upstream:    proxy,
		rateEnabled: cfg.rateEnabled,
		trustProxy:  cfg.trustProxy,
		addHeaders:  cfg.addHeaders,
		adminToken:  cfg.adminToken,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()))
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("store", cfg.rateStore),
		zap.Int("default_max", policy.Default.MaxRequests),
		zap.Duration("default_window", policy.Default.Window),
		zap.Int("routes", len(policy.Routes)),
		zap.Bool("trust_proxy_headers", cfg.trustProxy))
	logger.Info("concurrency",
		zap.Int("max", cfg.concurrencyMax),
		zap.Duration("acquire_timeout", cfg.concurrencyTimeout))
	if cfg.adminToken == "" {
		logger.Info("admin routes disabled (ADMIN_TOKEN not set)")
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
