package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examstats/internal/cache"
	"github.com/pavelanni/examstats/internal/event"
	"github.com/pavelanni/examstats/internal/handler"
	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/report"
	"github.com/pavelanni/examstats/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP report server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default report language (en, ru)")
	f.String("realm", "examstats", "Basic auth realm")
	f.Int("workers", 4, "Answer keys analysed in parallel per report (0 = unbounded)")
	f.String("redis-addr", "", "Redis address for the report cache (empty disables caching)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", cache.DefaultTTL, "Report cache TTL")
	f.String("rabbitmq-uri", "", "RabbitMQ URI for correction events (empty disables events)")
	f.String("admin-password", "", "Initial admin password (or set EXAMSTATS_ADMIN_PASSWORD)")
	f.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	reportCache, err := cache.New(ctx, cache.Options{
		Addr:     v.GetString("redis-addr"),
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
		TTL:      v.GetDuration("cache-ttl"),
	})
	if err != nil {
		slog.Warn("report cache unavailable, continuing without it", "error", err)
		reportCache = cache.Nop{}
	}
	defer cache.Close(reportCache)

	publisher, err := event.NewPublisher(v.GetString("rabbitmq-uri"))
	if err != nil {
		slog.Warn("event publisher unavailable, continuing without it", "error", err)
		publisher, _ = event.NewPublisher("")
	}
	defer publisher.Close()

	cfg := model.ServerConfig{
		Lang:    lang,
		Realm:   v.GetString("realm"),
		Workers: v.GetInt("workers"),
	}
	reports := report.NewService(db,
		report.WithCache(reportCache),
		report.WithPublisher(publisher),
		report.WithWorkers(cfg.Workers),
	)
	h := handler.New(db, reports, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", srv.Addr,
			"lang", lang,
			"workers", cfg.Workers,
			"cache", v.GetString("redis-addr") != "",
			"events", publisher.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown-timeout"))
		defer cancel()
		slog.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := db.CleanupExpiredTokens(); err != nil {
					slog.Warn("token cleanup failed", "error", err)
				}
			}
		}
	})
	return g.Wait()
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMSTATS_ADMIN_PASSWORD env var")
	}
	return createUser(db, "admin", "Administrator", password, model.UserRoleAdmin)
}

func createUser(db *store.Store, username, displayName, password string, role model.UserRole) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if displayName == "" {
		displayName = username
	}
	_, err = db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", username, err)
	}
	return nil
}
