package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/morozkovaa/lingua-news/internal/audit"
	"github.com/morozkovaa/lingua-news/internal/blacklist"
	"github.com/morozkovaa/lingua-news/internal/config"
	"github.com/morozkovaa/lingua-news/internal/ratelimit"
	"github.com/morozkovaa/lingua-news/internal/scheduler"
	"github.com/morozkovaa/lingua-news/internal/service"
	"github.com/morozkovaa/lingua-news/internal/storage/postgres"
	transport "github.com/morozkovaa/lingua-news/internal/transport/http"
	"github.com/morozkovaa/lingua-news/internal/transport/http/handlers"
	"github.com/morozkovaa/lingua-news/internal/transport/http/middleware"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Журнал аудита.
	auditor := audit.New(str)

	// Реестр отозванных токенов.
	var registry blacklist.Registry
	switch cfg.Blacklist.Backend {
	case config.BlacklistBackendMemory:
		registry = blacklist.NewMemory()
	default:
		registry = blacklist.NewStore(str)
	}
	log.Info("blacklist_initialized", "backend", cfg.Blacklist.Backend)

	// Лимитеры: Redis при наличии адреса, иначе внутрипроцессные.
	successCfg := ratelimit.Config{
		Limit:  cfg.RateLimit.SuccessLimit,
		Window: cfg.RateLimit.SuccessWindow,
	}
	failureCfg := ratelimit.Config{
		Limit:  cfg.RateLimit.FailureLimit,
		Window: cfg.RateLimit.FailureWindow,
		Block:  cfg.RateLimit.FailureBlock,
	}

	var (
		successLimiter ratelimit.Limiter
		failureLimiter ratelimit.Limiter
		rdb            *redis.Client
	)
	if cfg.Redis.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Redis.RedisURL)
		if err != nil {
			log.Error("redis_url_invalid", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		successLimiter = ratelimit.NewRedis(rdb, successCfg, "rl:success")
		failureLimiter = ratelimit.NewRedis(rdb, failureCfg, "rl:failure")
		log.Info("ratelimit_backend", "backend", "redis")
	} else {
		successLimiter = ratelimit.NewLocal(successCfg)
		failureLimiter = ratelimit.NewLocal(failureCfg)
		log.Info("ratelimit_backend", "backend", "local")
	}

	// Сервис.
	srvc := service.New(str, cfg.Auth)
	srvc.SetAuditor(auditor)
	srvc.SetBlacklist(registry)
	log.Info("service_initialized")

	// Фоновая очистка: три независимые задачи.
	sched, err := scheduler.New(log, cfg.Timeouts.Service,
		scheduler.Job{
			Name:     "blacklist_cleanup",
			Interval: cfg.Cleanup.BlacklistInterval,
			Run: func(ctx context.Context) (int64, error) {
				return registry.Cleanup(ctx, time.Now().UTC())
			},
		},
		scheduler.Job{
			Name:     "refresh_cleanup",
			Interval: cfg.Cleanup.RefreshInterval,
			Run: func(ctx context.Context) (int64, error) {
				return str.DeleteExpiredTokens(ctx, time.Now().UTC())
			},
		},
		scheduler.Job{
			Name:     "session_cleanup",
			Interval: cfg.Cleanup.SessionInterval,
			Run: func(ctx context.Context) (int64, error) {
				return str.SweepExpiredSessions(ctx, time.Now().UTC())
			},
		},
	)
	if err != nil {
		log.Error("scheduler_init_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}
	sched.Start()

	// HTTP: API + служебные эндпойнты на одном порту.
	gate := middleware.NewGate(srvc, registry, successLimiter, failureLimiter, auditor)
	h := handlers.New(srvc)
	h.SetFailureLimiter(failureLimiter)
	h.SetAuditor(auditor)
	api := transport.NewRouter(h, gate, transport.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	}
	shutdownCancel()

	sched.Stop()

	if rdb != nil {
		_ = rdb.Close()
	}

	rootCancel()
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
