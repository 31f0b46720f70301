package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Superoldman96/bunkerweb/internal/config"
	"github.com/Superoldman96/bunkerweb/internal/logging"
	"github.com/Superoldman96/bunkerweb/internal/metrics"
	"github.com/Superoldman96/bunkerweb/internal/server"
	"github.com/Superoldman96/bunkerweb/internal/whitelist"
	"github.com/Superoldman96/bunkerweb/internal/whitelist/cache"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "WHITELIST", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	cacheLogger := logger.With(slog.String("agent", "cache_factory"))
	store, backendName := buildCacheStore(cacheLogger, cfg.Server.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	resolver, err := whitelist.NewNetResolver(whitelist.NetResolverConfig{
		ASNDatabase: cfg.Server.Resolver.ASNDatabase,
		RDNSTimeout: time.Duration(cfg.Server.Resolver.RDNSTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("failed to configure resolver: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	engine := whitelist.New(nil, store, resolver, whitelist.Options{
		Enabled:        cfg.Server.Whitelist.Enabled,
		RDNSGlobalOnly: cfg.Server.Whitelist.RDNSGlobalOnly,
		CacheTTL:       time.Duration(cfg.Server.Cache.TTLSeconds) * time.Second,
	}, logger, metricsRecorder)

	watcher, err := config.WatchLists(ctx, cfg.Server.Whitelist.ListsFolder, func(raw map[string][]string) {
		lists, loadErr := whitelist.Load(raw)
		if loadErr != nil {
			// Keep the previous generation; a malformed reload must not
			// take the feature down.
			logger.Error("list load failed", slog.Any("error", loadErr))
			return
		}
		engine.Swap(lists)
		logger.Info("whitelist lists loaded",
			slog.String("folder", cfg.Server.Whitelist.ListsFolder),
			slog.Bool("empty", lists.Empty()))
	}, func(err error) {
		if err != nil {
			logger.Error("lists watcher error", slog.Any("error", err))
		}
	})
	if err != nil {
		logger.Error("lists watcher setup failed, whitelist stays fail-closed", slog.Any("error", err))
	} else {
		defer watcher.Stop()
	}

	checkHandler := server.NewCheckHandler(engine, cfg.Server.Whitelist.DefaultScope, logger)
	healthHandler := server.NewHealthHandler(engine, backendName)
	router := server.NewRouter(checkHandler, healthHandler, metricsRecorder.Handler())

	srv, err := server.New(cfg, logger, router)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildCacheStore selects the configured backend. A redis backend that fails
// its startup ping degrades to the memory store so the engine keeps serving
// decisions, just without cross-process memoization.
func buildCacheStore(logger *slog.Logger, cfg config.ServerCacheConfig) (cache.Store, string) {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory decision cache")
		}
		return cache.NewMemory(), "memory"
	case "redis":
		store, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			if logger != nil {
				logger.Error("redis cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache")
			}
			return cache.NewMemory(), "memory"
		}
		if logger != nil {
			logger.Info("using redis decision cache", slog.String("address", cfg.Redis.Address))
		}
		return store, "redis"
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemory(), "memory"
	}
}
