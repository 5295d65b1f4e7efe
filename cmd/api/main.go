package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/app"
	"github.com/minhnhutttt/la/internal/config"
	"github.com/minhnhutttt/la/internal/logging"
	"github.com/minhnhutttt/la/internal/metrics"
	"github.com/minhnhutttt/la/internal/store"
	"github.com/minhnhutttt/la/internal/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, store.WithMigrationLogger(logger))
	if err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	logger.Info("schema up to date", zap.Int("applied", len(applied)))
	dataStore := store.NewPostgresStore(db)

	m := metrics.New()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithRecorder(m),
		app.WithReadinessCheck("database", dataStore),
	}

	var verifier *verify.CachedVerifier
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := verify.NewRedisCache(cfg.RedisURL, cfg.VerificationCacheTTL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer cache.Close()
		logger.Info("caching lawyer verification in redis", zap.Duration("ttl", cfg.VerificationCacheTTL))
		verifier = verify.NewCachedVerifier(dataStore, cache, logger)
		opts = append(opts, app.WithReadinessCheck("redis", cache))
	} else {
		logger.Info("lawyer verification cache disabled")
		verifier = verify.NewCachedVerifier(dataStore, nil, logger)
	}

	service := app.New(cfg, dataStore, verifier, opts...)
	m.RegisterGauge("open_views", "Question views currently held in memory.", func() float64 {
		return float64(service.OpenViews())
	})

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		service.RunJanitor(janitorCtx, time.Minute)
	}()

	trustedProxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin,
		app.WithServerLogger(logger),
		app.WithMetrics(m),
		app.WithRateLimit(cfg.MaxRequestsPerMin),
		app.WithTrustedProxies(trustedProxies),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("la api listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	stopJanitor()
	<-janitorDone
}
