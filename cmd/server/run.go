package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	authhandler "userdir/internal/auth/handler"
	"userdir/internal/auth/revocation"
	"userdir/internal/auth/token"
	"userdir/internal/platform/config"
	"userdir/internal/platform/httpserver"
	"userdir/internal/platform/metrics"
	"userdir/internal/platform/middleware"
	"userdir/internal/platform/postgres"
	"userdir/internal/platform/redis"
	"userdir/internal/user/agepolicy"
	"userdir/internal/user/engine"
	userhandler "userdir/internal/user/handler"
	"userdir/internal/user/service"
	"userdir/internal/user/store"
	"userdir/pkg/password"
	audit "userdir/pkg/platform/audit"
	auditkafka "userdir/pkg/platform/audit/kafka"
	auditmemory "userdir/pkg/platform/audit/store/memory"
)

const revocationSweepInterval = time.Minute

type revocationList interface {
	middleware.RevocationChecker
	authhandler.Revoker
}

// run wires every dependency, serves until ctx is cancelled and then shuts
// the server down within cfg.ShutdownTimeout.
func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]httpserver.HealthCheck{}
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	users, err := buildUserStore(ctx, cfg.Database, log, checks, &cleanups)
	if err != nil {
		return err
	}

	policy := agepolicy.New(cfg.MinAge, agepolicy.WithLogger(log), agepolicy.WithObserver(m))
	hasher := password.NewBcryptHasher(cfg.Auth.BcryptCost)

	auditStore, err := buildAuditStore(ctx, cfg.Kafka, log, checks, &cleanups)
	if err != nil {
		return err
	}
	publisher := audit.NewPublisher(auditStore, audit.WithLogger(log))

	userService, err := service.New(users, engine.New(policy), hasher,
		service.WithAuditor(publisher),
		service.WithMetrics(m),
		service.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("user service: %w", err)
	}

	if cfg.Admin.Enabled() {
		admin, err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("bootstrap administrator: %w", err)
		}
		log.Info("administrator ready", "user_id", admin.ID.String(), "email", admin.Email)
	} else {
		log.Warn("no administrator configured; POST and DELETE /users are unreachable until one exists")
	}

	revoked, sweeper, err := buildRevocationList(ctx, cfg.Redis, log, checks, &cleanups)
	if err != nil {
		return err
	}
	tokens := token.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	authn := middleware.NewAuthenticator(tokens, revoked, userService, log, m)

	router := httpserver.NewRouter(log, m, reg, checks)
	userhandler.New(userService, authn, log).Register(router)
	authhandler.New(tokens, revoked, authn, publisher, cfg.Auth.AccessTokenTTL, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting userdir", "addr", cfg.Addr, "min_age", cfg.MinAge)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(policy.Run(gctx))
	})
	if sweeper != nil {
		g.Go(func() error {
			return ignoreCanceled(sweeper.Run(gctx, revocationSweepInterval))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildUserStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, checks map[string]httpserver.HealthCheck, cleanups *[]func()) (service.UserStore, error) {
	if cfg.URL == "" {
		log.Info("using in-memory user store")
		return store.NewInMemoryUserStore(), nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	*cleanups = append(*cleanups, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, err
	}
	checks["postgres"] = db.PingContext
	log.Info("using postgres user store")
	return store.NewPostgresUserStore(db), nil
}

func buildAuditStore(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger, checks map[string]httpserver.HealthCheck, cleanups *[]func()) (audit.Store, error) {
	if !cfg.Enabled() {
		log.Info("kafka not configured; audit events kept in memory")
		return auditmemory.NewInMemoryStore(), nil
	}
	client, err := auditkafka.NewClient(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	if err := auditkafka.EnsureTopic(ctx, client, cfg.Topic, 3, 1); err != nil {
		client.Close()
		return nil, err
	}
	kafkaStore := auditkafka.NewStore(client, cfg.Topic, auditkafka.WithProduceTimeout(cfg.ProduceTimeout))
	*cleanups = append(*cleanups, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kafkaStore.Close(flushCtx); err != nil {
			log.Warn("kafka flush on shutdown failed", "error", err)
		}
	})
	checks["kafka"] = kafkaStore.Health
	log.Info("publishing audit events to kafka", "topic", cfg.Topic)
	return kafkaStore, nil
}

// buildRevocationList returns the shared list and, for the in-memory variant,
// the sweeper that must run in the background.
func buildRevocationList(ctx context.Context, cfg config.RedisConfig, log *slog.Logger, checks map[string]httpserver.HealthCheck, cleanups *[]func()) (revocationList, *revocation.InMemoryList, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("using in-memory token revocation list")
		list := revocation.NewInMemoryList()
		return list, list, nil
	}
	*cleanups = append(*cleanups, func() { _ = client.Close() })
	checks["redis"] = client.Health
	log.Info("using redis token revocation list")
	return revocation.NewRedisList(client.Client), nil, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
