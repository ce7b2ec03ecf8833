package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type config struct {
	listenAddr  string
	upstreamURL string

	rateEnabled      bool
	rateStore        string // "memory" ou "redis"
	ratePolicyFile   string
	rateCleanupEvery time.Duration
	rateRedisPrefix  string
	trustProxy       bool
	addHeaders       bool

	redisAddr     string
	redisPassword string
	redisDB       int

	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled          bool
	rateStatsPrefix           string
	rateStatsTTL              time.Duration
	rateStatsBucket           string
	rateStatsTrackIdentifiers bool

	metricsEnabled bool
	adminToken     string
	slowThreshold  time.Duration

	logLevel  string
	logFormat string
}

// loadEnvFile carrega o .env se existir; variáveis já setadas no ambiente ganham.
func loadEnvFile() error {
	path := getenvDefault("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = strings.TrimSpace(os.Getenv("UPSTREAM_URL"))

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateStore = strings.ToLower(getenvDefault("RATE_STORE", "memory"))
	cfg.ratePolicyFile = os.Getenv("RATE_POLICY_FILE")
	cfg.rateCleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", 5*time.Minute)
	cfg.rateRedisPrefix = getenvDefault("RATE_REDIS_PREFIX", "ratelimit:window")
	// atrás de Vercel/Cloudflare/nginx o IP real vem nos headers de proxy
	cfg.trustProxy = getenvBoolDefault("TRUST_PROXY_HEADERS", true)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackIdentifiers = getenvBoolDefault("RATE_STATS_TRACK_IDENTIFIERS", false)

	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)
	cfg.adminToken = os.Getenv("ADMIN_TOKEN")
	cfg.slowThreshold = getenvDurationDefault("PERF_SLOW_THRESHOLD", time.Second)

	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.rateStore != "memory" && cfg.rateStore != "redis" {
		return config{}, fmt.Errorf("RATE_STORE must be memory or redis, got %q", cfg.rateStore)
	}
	if cfg.needsRedis() && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when RATE_STORE=redis or RATE_STATS_ENABLED=true")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.logFormat != "json" && cfg.logFormat != "console" {
		return config{}, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.logFormat)
	}
	return cfg, nil
}

func (c config) needsRedis() bool {
	// o store Redis atende monitoramento e admin mesmo com o limiter desligado
	return c.rateStore == "redis" || c.rateStatsEnabled
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
