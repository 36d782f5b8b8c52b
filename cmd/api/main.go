package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velomarket/deliveryhub/internal/config"
	"github.com/velomarket/deliveryhub/internal/db"
	httpx "github.com/velomarket/deliveryhub/internal/http"
	"github.com/velomarket/deliveryhub/internal/observability"
	"github.com/velomarket/deliveryhub/internal/redisclient"
	"github.com/velomarket/deliveryhub/internal/repo/postgres"
	"github.com/velomarket/deliveryhub/internal/security"
	"github.com/velomarket/deliveryhub/internal/session"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// tracing
	shutdownTracer, err := observability.InitTracer(ctx, "deliveryhub-api", cfg.OTelEndpoint)

	if err != nil {
		log.Warn("tracing disabled", "err", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	// database
	if err := db.Migrate(ctx, cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connection failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	hasher := security.NewHasher(cfg.BcryptCost)

	if err := db.EnsureAdminUser(ctx, pool, hasher, cfg); err != nil {
		log.Error("admin seeding failed", "err", err)
		os.Exit(1)
	}

	// redis (rate limiter backend); the API stays up without it
	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	defer rdb.Close()

	if err := rdb.Ping(ctx); err != nil {
		log.Warn("redis unreachable, rate limiting disabled", "err", err)
		rdb = nil
	}

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	router := httpx.NewRouter(log, pool, rdb, prom, metricsHandler, cfg)

	// background sweep of expired refresh tokens
	tokensRepo := postgres.NewRefreshTokensRepo(pool, prom)

	go session.SweepExpired(ctx, tokensRepo, prom, log, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}
