package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openwx/weather-gateway/internal/cache"
	"github.com/openwx/weather-gateway/internal/config"
	httphandler "github.com/openwx/weather-gateway/internal/http"
	"github.com/openwx/weather-gateway/internal/observability"
	"github.com/openwx/weather-gateway/internal/service"
	"github.com/openwx/weather-gateway/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.APIKey == "" {
		logger.Warn("OPENWEATHER_API_KEY is not set; weather lookups will fail with a configuration error")
	}

	client := upstream.NewClient(cfg.APIKey, logger, upstream.Options{
		WeatherBaseURL: cfg.WeatherBaseURL,
		GeoBaseURL:     cfg.GeoBaseURL,
		AttemptTimeout: cfg.UpstreamTimeout,
		MaxRetries:     cfg.RetryMax,
		RetryDelay:     cfg.RetryDelay,
	})

	if cfg.BreakerEnabled {
		client.SetBreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: cfg.BreakerMaxRequests,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
		}))
		logger.Info("circuit breaker enabled",
			zap.Duration("interval", cfg.BreakerInterval),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	var store cache.Store
	var memcachedStore *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached store", zap.Error(err))
		}
		memcachedStore = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewMemoryStore(10 * time.Minute)
		logger.Info("cache backend: in_memory")
	}

	responseCache := cache.NewResponseCache(store, logger)
	svc := service.New(client, responseCache, logger, service.TTLs{
		Current:  cfg.CurrentTTL,
		Forecast: cfg.ForecastTTL,
		Search:   cfg.SearchTTL,
	})

	var cachePing func() error
	if memcachedStore != nil {
		cachePing = memcachedStore.Ping
	}
	handler := httphandler.NewHandler(svc, logger, cachePing)

	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), cfg.RateLimitBurst)
	router := httphandler.NewRouter(handler, logger, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if memcachedStore != nil {
		if err := memcachedStore.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
