package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rsyarsya/pneuscope/internal/config"
	"github.com/rsyarsya/pneuscope/internal/email"
	"github.com/rsyarsya/pneuscope/internal/repository/postgres"
	auditService "github.com/rsyarsya/pneuscope/internal/service/audit"
	eventService "github.com/rsyarsya/pneuscope/internal/service/event"
	"github.com/rsyarsya/pneuscope/internal/service/notification"
	"github.com/rsyarsya/pneuscope/internal/worker"
	"github.com/rsyarsya/pneuscope/pkg/logger"
	redisbroker "github.com/rsyarsya/pneuscope/pkg/messaging/redis"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
	pkgworker "github.com/rsyarsya/pneuscope/pkg/worker"
)

// healthAddr serves liveness and metrics for the worker process.
const healthAddr = ":8081"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lg := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Service: "pneuscope-worker",
	})
	lg.SetGlobal()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := redisbroker.NewClient(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return err
	}
	broker := redisbroker.NewRedisBroker(redisClient, *lg.Zerolog())
	defer broker.Close()

	m := metrics.NewMetrics("pneuscope_worker")
	base := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(base)

	processor, err := pkgworker.NewOutboxProcessor(outboxRepo, broker, pkgworker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxRetries:    cfg.Outbox.MaxRetries,
	}, *lg.Zerolog(), m)
	if err != nil {
		return err
	}

	notifier := notification.NewService(email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}))

	retention, err := worker.NewRetentionWorker(*lg.Zerolog(),
		worker.RetentionJob{
			Name:      "outbox",
			Schedule:  cfg.Retention.OutboxSchedule,
			Retention: time.Duration(cfg.Retention.OutboxHours) * time.Hour,
			Cleaner:   eventService.NewService(outboxRepo),
		},
		worker.RetentionJob{
			Name:      "audit",
			Schedule:  cfg.Retention.AuditSchedule,
			Retention: time.Duration(cfg.Retention.AuditDays) * 24 * time.Hour,
			Cleaner:   auditService.NewService(postgres.NewAuditRepository(base)),
		},
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", m.Handler())
	healthSrv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := notifier.Run(gctx, broker); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("notification consumer stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return retention.Start(gctx)
	})
	g.Go(func() error {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthSrv.Shutdown(shutdownCtx)
	})

	log.Info().Msg("Worker started")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Worker stopped")
	return nil
}
