// cmd/portal/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"memberportal/internal/config"
	"memberportal/internal/database"
	"memberportal/internal/journal"
	"memberportal/internal/logging"
	"memberportal/internal/membership"
	"memberportal/internal/security"
	"memberportal/internal/speakers"
	"memberportal/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Init(os.Stderr, "info", "console")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.Open(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	kind := cfg.Members.Adapter
	if !slices.Contains(membership.Kinds(), kind) {
		log.Warn().Str("adapter", kind).Strs("known", membership.Kinds()).Msg("unknown member adapter, using standard")
		kind = membership.KindStandard
	}
	members := membership.NewService(
		membership.NewAdapter(kind, db),
		kind,
		journal.New(db),
		cfg.Auth.AttemptsPerMinute,
	)

	var store security.TokenStore
	switch cfg.Session.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		store = security.NewRedisStore(rdb, cfg.Session.TTL)
	default:
		store = security.NewMemoryStore()
	}

	handler := newRouter(routerDeps{
		DB:       db,
		Members:  members,
		Speakers: speakers.NewService(db),
		CSRF:     security.NewCSRF(store),
		Sessions: security.SessionOptions{
			TTL:    cfg.Session.TTL,
			Secure: cfg.Session.SecureCookie,
		},
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("adapter", kind).
		Str("sessions", cfg.Session.Backend).
		Msg("member portal started")

	<-ctx.Done()
	log.Info().Msg("shutting down member portal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}
}
