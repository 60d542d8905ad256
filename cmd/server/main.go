// Package main wires the cradle server: configuration, stores, the audit
// pipeline, and the HTTP edge. Business logic lives in the internal service
// packages; this file only connects them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cradle/internal/audit/handler"
	auditservice "cradle/internal/audit/service"
	"cradle/internal/auth/device"
	authservice "cradle/internal/auth/service"
	"cradle/internal/auth/store/lockout"
	"cradle/internal/auth/store/session"
	"cradle/internal/identity"
	identityservice "cradle/internal/identity/service"
	identitystore "cradle/internal/identity/store"
	jwttoken "cradle/internal/jwt_token"
	"cradle/internal/platform/config"
	"cradle/internal/platform/httpserver"
	"cradle/internal/platform/kafka"
	kafkaconsumer "cradle/internal/platform/kafka/consumer"
	"cradle/internal/platform/logger"
	"cradle/internal/platform/metrics"
	"cradle/internal/platform/otel"
	"cradle/internal/platform/postgres"
	"cradle/internal/platform/redis"
	httptransport "cradle/internal/transport/http"
	"cradle/pkg/platform/audit"
	auditconsumer "cradle/pkg/platform/audit/consumer"
	"cradle/pkg/platform/audit/recorder"
	"cradle/pkg/platform/audit/store/logsink"
	auditmem "cradle/pkg/platform/audit/store/memory"
	auditpg "cradle/pkg/platform/audit/store/postgres"
	"cradle/pkg/platform/audit/stream"
	"cradle/pkg/platform/circuit"
	"cradle/pkg/platform/tx"
)

// userStore is the full surface both identity store implementations expose.
// The services each consume a narrower slice of it; main needs one variable
// that satisfies all of them.
type userStore interface {
	authservice.UserStore
	identityservice.UserStore
	identity.UserSource
}

func main() {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting cradle",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Enabled(),
		"redis", cfg.Redis.Enabled(),
		"kafka", cfg.Kafka.Enabled(),
		"audit_mode", cfg.Audit.Mode,
	)

	otelShutdown, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(flushCtx); err != nil {
				logger.Warn("trace exporter shutdown", "error", err)
			}
		}()
	}

	var db *sql.DB
	if cfg.Database.Enabled() {
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
	}

	// redisClient is nil when REDIS_URL is unset; sessions and lockouts then
	// live in memory.
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit pipeline. Without a database the primary store is in-memory,
	// which is only suitable for development; the log sink remains the
	// fallback either way so no entry is silently dropped.
	var primary audit.Logger
	if db != nil {
		primary = auditpg.New(db)
	} else {
		primary = auditmem.NewInMemoryStore()
	}

	recOpts := []recorder.Option{
		recorder.WithFallback(logsink.New(logger)),
		recorder.WithLogger(logger),
		recorder.WithMetrics(recorder.NewMetrics()),
		recorder.WithBreaker(circuit.New("audit-primary")),
	}
	if !cfg.Audit.Strict() {
		recOpts = append(recOpts, recorder.WithFailOpen())
	}

	var consumerGroup *kafkaconsumer.Consumer
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		if err := producer.EnsureTopics(ctx, cfg.Kafka, cfg.Kafka.AuditTopic); err != nil {
			return fmt.Errorf("ensure kafka topics: %w", err)
		}

		publisher := stream.NewPublisher(producer,
			stream.WithTopic(cfg.Kafka.AuditTopic),
			stream.WithLogger(logger),
			stream.WithMetrics(stream.NewMetrics()),
			stream.WithBreaker(circuit.New("audit-stream")),
		)
		// Declared after producer.Close so the publisher drains first.
		defer publisher.Close()
		recOpts = append(recOpts, recorder.WithAnnouncer(publisher))

		topicRouter := auditconsumer.NewRouter(logger, nil)
		topicRouter.Register(cfg.Kafka.AuditTopic, auditconsumer.Tee{
			auditconsumer.NewSIEMHandler(logger),
			auditconsumer.NewMetricsHandler(auditconsumer.NewHandlerMetrics(), logger),
		})
		consumerGroup, err = kafkaconsumer.New(cfg.Kafka, topicRouter.Topics(), topicRouter, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}

	rec := recorder.New(primary, recOpts...)
	m := metrics.New()

	var users userStore = identitystore.NewInMemory()
	if db != nil {
		users = identitystore.NewPostgres(db)
	}

	lockoutPolicy := lockout.Policy{
		Threshold:    cfg.Auth.LockoutThreshold,
		Window:       cfg.Auth.LockoutWindow,
		LockDuration: cfg.Auth.LockoutDuration,
	}
	var sessions authservice.SessionStore = session.New()
	var lockouts authservice.LockoutStore = lockout.New(lockoutPolicy)
	if redisClient != nil {
		sessions = session.NewRedis(redisClient.Client)
		lockouts = lockout.NewRedis(redisClient.Client, lockoutPolicy)
	}

	tokens := jwttoken.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	validator := jwttoken.NewJWTServiceAdapter(tokens)

	authOpts := []authservice.Option{
		authservice.WithLogger(logger),
		authservice.WithMetrics(m),
		authservice.WithDeviceService(device.NewService(cfg.Auth.DeviceBinding)),
	}
	userOpts := []identityservice.Option{
		identityservice.WithLogger(logger),
		identityservice.WithMetrics(m),
	}
	if db != nil {
		runner := tx.NewDBRunner(db)
		authOpts = append(authOpts, authservice.WithTxRunner(runner))
		userOpts = append(userOpts, identityservice.WithTxRunner(runner))
	}

	authSvc := authservice.New(users, identity.NewVerifier(users), sessions, lockouts, tokens, rec,
		authservice.Config{
			AccessTokenTTL:  cfg.JWT.AccessTTL,
			RefreshTokenTTL: cfg.JWT.RefreshTTL,
			SessionTTL:      cfg.Auth.SessionTTL,
		}, authOpts...)
	userSvc := identityservice.New(users, rec, userOpts...)
	// Queries read the primary store directly; the recorder only writes.
	auditSvc := auditservice.New(primary, auditservice.WithLogger(logger))

	srv := httpserver.New(cfg.Server, httptransport.NewRouter(
		httptransport.RouterConfig{
			Logger:  logger,
			Metrics: m,
			DB:      db,
			Redis:   redisClient,
			Timeout: cfg.Server.WriteTimeout,
		},
		httptransport.NewAuthHandler(authSvc, validator, logger),
		httptransport.NewUserHandler(userSvc, validator, logger),
		handler.New(auditSvc, validator, logger),
	))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if consumerGroup != nil {
		g.Go(func() error {
			defer consumerGroup.Close()
			if err := consumerGroup.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
