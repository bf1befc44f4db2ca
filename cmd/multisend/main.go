package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kardosh/multisend/internal/activity"
	"github.com/kardosh/multisend/internal/api"
	"github.com/kardosh/multisend/internal/auth"
	"github.com/kardosh/multisend/internal/backoff"
	"github.com/kardosh/multisend/internal/config"
	"github.com/kardosh/multisend/internal/credstore"
	"github.com/kardosh/multisend/internal/dispatch"
	"github.com/kardosh/multisend/internal/orchestrator"
	"github.com/kardosh/multisend/internal/publish"
	"github.com/kardosh/multisend/internal/ratelimit"
	"github.com/kardosh/multisend/internal/session"
	"github.com/kardosh/multisend/internal/sweeper"
	"github.com/kardosh/multisend/internal/template"
	"github.com/kardosh/multisend/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	slog.Info("multisend starting",
		"addr", cfg.Server.Address,
		"credentialDir", cfg.Session.CredentialDir,
		"redis", cfg.Redis.Enabled,
		"postgres", cfg.Database.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := buildCredStore(cfg)
	if err != nil {
		slog.Error("credential store init failed", "err", err)
		os.Exit(1)
	}

	var audit activity.Logger = activity.Nop{}
	var auditSource api.ActivitySource
	if cfg.Database.Enabled {
		db, err := sql.Open("pgx", cfg.Database.PostgresURL)
		if err != nil {
			slog.Error("postgres open failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := activity.NewPostgresLog(db)
		audit = pg
		auditSource = pg
	}

	zone, err := time.LoadLocation(cfg.Limits.TimeZone)
	if err != nil {
		slog.Error("invalid quota time zone", "tz", cfg.Limits.TimeZone, "err", err)
		os.Exit(1)
	}

	hub := publish.NewHub()
	fanout := publish.NewFanout(hub)
	defer fanout.Close()

	reg := session.NewRegistry()
	dialer := transport.NewLoopback()

	settings := ratelimit.NewSettings(cfg.Limits.Cooldown, cfg.Limits.MaxPerDay)
	limiter := ratelimit.NewLimiter(settings, zone)

	sup := session.SuperviseDeps{
		Dialer:      dialer,
		Creds:       creds,
		Registry:    reg,
		Backoff:     backoff.Reconnect(),
		MaxAttempts: cfg.Session.ReconnectAttempts,
		DialTimeout: cfg.Session.AuthTimeout,
	}
	authCfg := auth.Config{
		Timeout:      cfg.Session.AuthTimeout,
		ArtifactWait: cfg.Session.ArtifactWait,
	}
	authCtl := auth.NewController(dialer, creds, reg, fanout, authCfg, sup)

	engine := dispatch.NewEngine(reg, template.Builtin(), limiter, dispatch.Options{
		MaxRetries:     cfg.Dispatch.MaxRetries,
		DefaultCountry: cfg.Session.DefaultCountry,
		Audit:          audit,
	})

	orch := orchestrator.New(authCtl, reg, creds, engine, limiter, audit)
	defer orch.Shutdown()

	sweep, err := sweeper.New(cfg.Sweeper.Interval, reg)
	if err != nil {
		slog.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}
	sweep.Start()
	defer sweep.Stop()

	handler := api.NewHandler(orch, sweep, settings, auditSource)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler, hub)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	slog.Info("multisend stopped")
}

func buildCredStore(cfg *config.Config) (credstore.Store, error) {
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return credstore.Serialized(credstore.NewRedisStore(rdb)), nil
	}
	fs, err := credstore.NewFileStore(cfg.Session.CredentialDir)
	if err != nil {
		return nil, err
	}
	return credstore.Serialized(fs), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
