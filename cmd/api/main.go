package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okonek/teamspace/internal/app/migrate"
	"github.com/okonek/teamspace/internal/cache"
	httpx "github.com/okonek/teamspace/internal/http"
	"github.com/okonek/teamspace/internal/repository/postgres"
	"github.com/okonek/teamspace/internal/service/auth"
	"github.com/okonek/teamspace/internal/service/sample"
	"github.com/okonek/teamspace/internal/service/team"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/internal/ws"
	"github.com/okonek/teamspace/pkg/config"
	"github.com/okonek/teamspace/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	images, err := storage.NewMinioStore(ctx, cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageUseSSL, cfg.AvatarBucket, cfg.SampleBucket)
	if err != nil {
		log.Error("failed to connect to object storage", "error", err)
		os.Exit(1)
	}

	views := cache.NewMemoryCache(cfg.CacheTTL)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisCache, err := cache.NewRedisCache(addr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, log)
		if err != nil {
			log.Warn("redis cache unavailable, using in-process cache", "error", err)
		} else {
			views = redisCache
		}
	}
	defer views.Close()

	hub := ws.NewHub()

	authSvc := auth.New(repo, repo, repo, images, log, cfg)
	teamSvc := team.New(repo, repo, repo, images, views, hub, log, cfg)
	sampleSvc := sample.New(repo, repo, images, hub, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, teamSvc, sampleSvc, hub, limiter, cfg, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
