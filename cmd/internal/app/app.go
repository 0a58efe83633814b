// Package app wires the WhisperLink server runtime: config, logging,
// persistence, rate limiting, mail, and the HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth"
	authapi "github.com/va4unsingh/socket-chat-app/cmd/internal/auth/api"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/auth/session"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/mailer"
	"github.com/va4unsingh/socket-chat-app/cmd/internal/ratelimit"
	"github.com/va4unsingh/socket-chat-app/cmd/security/password"
)

// App is the server runtime. It owns the DB pool and Redis client.
type App struct {
	cfg Config
	log Logger

	registry    *prometheus.Registry
	httpMetrics *httpMetrics

	pool  *pgxpool.Pool
	redis *redis.Client

	auth *authapi.Handler
}

// New constructs a fully wired App from cfg. Every component reads its own
// WL_* settings here so a bad value fails startup, not the first request.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	a := &App{cfg: cfg, log: log, registry: newRegistry()}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	var err error
	if a.httpMetrics, err = newHTTPMetrics(a.registry); err != nil {
		return nil, err
	}

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	passwords, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg := authapi.LoadConfigFromEnv()
	if err := ValidateSecurityConfig(cfg, sessCfg, apiCfg, log); err != nil {
		return nil, err
	}

	authMetrics, err := auth.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	mgr, err := session.NewManager(sessCfg, passwords, session.WithObserver(authMetrics))
	if err != nil {
		return nil, err
	}

	mailCfg, err := mailer.LoadConfig()
	if err != nil {
		return nil, err
	}
	sender := mailer.New(mailCfg, log)

	svc, err := auth.NewService(store, mgr, passwords, sender, mailer.Links{BaseURL: cfg.PublicBaseURL},
		auth.WithLogger(log),
		auth.WithMetrics(authMetrics),
	)
	if err != nil {
		return nil, err
	}

	limits, err := a.newLimiters(ctx, apiCfg)
	if err != nil {
		return nil, err
	}

	if a.auth, err = authapi.NewHandler(log, svc, apiCfg, authapi.WithLimiters(limits)); err != nil {
		return nil, err
	}

	log.Info("app.ready",
		"db_enabled", a.pool != nil,
		"redis_enabled", a.redis != nil,
		"token_format", string(sessCfg.Format),
		"smtp_enabled", mailCfg.Host != "",
	)
	ready = true
	return a, nil
}

// newStore picks Postgres when a database URL is configured and the
// in-memory store otherwise.
func (a *App) newStore(ctx context.Context) (account.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return account.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

	if a.cfg.DBAutoMigrate {
		if err := migrateDB(ctx, pool, a.cfg.DBSchema, a.log); err != nil {
			return nil, err
		}
	}

	store, err := account.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) newLimiters(ctx context.Context, apiCfg authapi.Config) (authapi.Limiters, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("ratelimit.memory")
		return authapi.MemoryLimiters(apiCfg)
	}

	client, err := ratelimit.Connect(ctx, a.cfg.RedisURL)
	if err != nil {
		return authapi.Limiters{}, err
	}
	a.redis = client
	a.log.Info("ratelimit.redis")
	return authapi.RedisLimiters(client, apiCfg)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.routes() }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.close()
		return err
	}

	a.close()
	a.log.Info("server.stopped")
	return nil
}

// close releases the pool and Redis client.
func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
