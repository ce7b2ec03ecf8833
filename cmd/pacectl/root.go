package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"learn-gateway/pacing"
	"learn-gateway/pacing/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	store     string
	file      string
	redisAddr string
	redisDB   int
	client    string
	output    string
	verbose   bool

	maxSessions int
	maxRounds   int
	cooldown    time.Duration
	maxCalls    int
}

// limiter monta o pacing.Limiter a partir das flags; close libera o cliente Redis.
func (o *rootOptions) limiter() (l *pacing.Limiter, closeFn func(), err error) {
	log := zap.NewNop()
	if o.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, nil, err
		}
	}

	var store pacing.Store
	closeFn = func() { _ = log.Sync() }
	switch strings.ToLower(o.store) {
	case "file":
		store = storage.NewFileStore(o.file)
	case "redis":
		if o.redisAddr == "" {
			return nil, nil, fmt.Errorf("--redis-addr is required with --store=redis")
		}
		rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr, DB: o.redisDB})
		store = storage.NewRedisStore(rdb, o.client)
		closeFn = func() {
			_ = rdb.Close()
			_ = log.Sync()
		}
	default:
		return nil, nil, fmt.Errorf("unsupported store: %s (use file or redis)", o.store)
	}

	l = pacing.New(store,
		pacing.WithLogger(log),
		pacing.WithConfig(pacing.Config{
			MaxSessionsPerDay:   o.maxSessions,
			MaxRoundsPerSession: o.maxRounds,
			Cooldown:            o.cooldown,
			MaxAPICalls:         o.maxCalls,
		}))
	return l, closeFn, nil
}

func (o *rootOptions) print(w io.Writer, v any, text string) error {
	switch o.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		_, err := fmt.Fprintln(w, text)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", o.output)
	}
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pacing.json"
	}
	return filepath.Join(dir, "learn-gateway", "pacing.json")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pacectl",
		Short:         "Client-side pacing checks for learning sessions",
		Long:          "pacectl checks and records the client pacing budget (daily sessions, rounds, cooldown, API burst) before a request is sent.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.store, "store", "file", "state backend: file or redis")
	pf.StringVar(&opts.file, "file", defaultStateFile(), "state file for --store=file")
	pf.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address for --store=redis")
	pf.IntVar(&opts.redisDB, "redis-db", 0, "redis database")
	pf.StringVar(&opts.client, "client", "default", "client id (redis key namespace)")
	pf.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log storage problems to stderr")
	pf.IntVar(&opts.maxSessions, "max-sessions", 0, "sessions per day (default 20)")
	pf.IntVar(&opts.maxRounds, "max-rounds", 0, "rounds per session (default 10)")
	pf.DurationVar(&opts.cooldown, "cooldown", 0, "cooldown between sessions (default 2m)")
	pf.IntVar(&opts.maxCalls, "max-calls", 0, "API calls per minute (default 15)")

	root.AddCommand(
		newStatusCmd(opts),
		newStartCmd(opts),
		newRoundCmd(opts),
		newCallCmd(opts),
		newEndCmd(opts),
		newCleanupCmd(opts),
	)
	return root
}
