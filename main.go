// Command ytproxy is a quota-rotating proxy for the YouTube Data API v3.
//
// It exposes search, channel, playlist, and video lookup endpoints,
// forwards each request upstream with one key from a configured pool,
// and rotates keys to stay under the per-key daily quota. Usage state
// persists in Redis when reachable and degrades to in-memory tracking
// when not.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	// The day-boundary logic needs the provider's reference timezone on
	// every host, including scratch containers without tzdata.
	_ "time/tzdata"

	"ytproxy/config"
	httpx "ytproxy/http"
	"ytproxy/metrics"
	"ytproxy/quota"
	"ytproxy/server"
	"ytproxy/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, degraded := buildStore(ctx, cfg)

	m := metrics.New()

	ledger := quota.NewLedger(store, len(cfg.APIKeys))
	ledger.Observer = m
	if err := ledger.Hydrate(ctx); err != nil {
		slog.Warn("hydration failed, starting from zeroed counters", slog.Any("error", err))
	}

	rotator := quota.NewRotator(quota.NewPool(cfg.APIKeys), ledger)
	rotator.Observer = m

	httpCfg := httpx.DefaultConfig()
	httpCfg.Timeout = cfg.UpstreamTimeout
	httpCfg.UpstreamRPS = cfg.UpstreamRPS
	upstream := httpx.New(httpCfg)
	defer upstream.Close()

	yt := youtube.NewClient(upstream, rotator, ledger)
	yt.Pacer = httpx.NewPacer(cfg.PaceMin, cfg.PaceMax)

	srv := server.New(cfg, yt, ledger, rotator, m, degraded)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildStore connects the Redis store, falling back to the in-memory
// no-op store when Redis is disabled or unreachable. The second return
// value reports degraded (non-persistent) mode.
func buildStore(ctx context.Context, cfg *config.Config) (quota.Store, bool) {
	if cfg.RedisAddr == "" {
		slog.Info("persistence disabled, usage state is in-memory only")
		return quota.NewMemoryStore(), true
	}

	rcfg := quota.DefaultRedisConfig()
	rcfg.Addr = cfg.RedisAddr
	rcfg.Password = cfg.RedisPassword
	rcfg.DB = cfg.RedisDB
	rcfg.KeyPrefix = cfg.RedisKeyPrefix

	store, err := quota.NewRedisStore(ctx, rcfg)
	if err != nil {
		slog.Warn("redis unreachable, falling back to in-memory usage tracking",
			slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		return quota.NewMemoryStore(), true
	}
	return store, false
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}
