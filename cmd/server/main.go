package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/oilbaron/sim-engine/internal/api"
	"github.com/oilbaron/sim-engine/internal/clock"
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/save"
	"github.com/oilbaron/sim-engine/internal/scheduler"
	"github.com/oilbaron/sim-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	env := config.FromEnv()

	// --- Balance tables ---
	cfg := config.Default()
	if env.BalanceFile != "" {
		loaded, err := config.Load(env.BalanceFile)
		if err != nil {
			slog.Error("invalid balance file", "path", env.BalanceFile, "err", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("balance file loaded", "path", env.BalanceFile)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch {
	case env.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), env.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("database schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case env.SQLitePath != "":
		lite, err := store.OpenSQLite(env.SQLitePath)
		if err != nil {
			slog.Error("sqlite open failed", "path", env.SQLitePath, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("using SQLite save store", "path", env.SQLitePath)
	default:
		slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (saves will not persist)")
		st = store.NewMemoryStore()
	}

	// Wrap with Redis read-through cache if configured.
	if env.RedisURL != "" {
		opt, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, 30*time.Second)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Game sessions ---
	persister := save.NewPersister(st, env.SaveCompression == "zstd")
	sessions := api.NewSessions(cfg, persister, wsHub,
		api.WithClickLimit(env.ClickRate, env.ClickBurst),
		api.WithIdleTTL(env.SessionIdleTTL),
	)
	svc := api.NewService(sessions, wsHub)

	go scheduler.Run(ctx, cfg.Extraction.TickInterval, clock.Real{}.Now, sessions.Advance)
	if env.SessionIdleTTL > 0 {
		go scheduler.Run(ctx, time.Minute, clock.Real{}.Now, func(now time.Time) {
			sessions.Evict(ctx, now)
		})
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for the browser UI.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.IdentityHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"sim-engine","sessions":%d}`, sessions.Len())
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sim-engine listening", "port", env.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("shutting down sim-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := sessions.SaveAll(shutdownCtx); err != nil {
		slog.Error("final save incomplete", "err", err)
	}
	fmt.Println("sim-engine stopped")
}
