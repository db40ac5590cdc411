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
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/rsyarsya/pneuscope/internal/config"
	assessmentHandler "github.com/rsyarsya/pneuscope/internal/handler/assessment"
	authHandler "github.com/rsyarsya/pneuscope/internal/handler/auth"
	"github.com/rsyarsya/pneuscope/internal/handler/health"
	patientHandler "github.com/rsyarsya/pneuscope/internal/handler/patient"
	"github.com/rsyarsya/pneuscope/internal/handler/prometheus"
	streamHandler "github.com/rsyarsya/pneuscope/internal/handler/stream"
	userHandler "github.com/rsyarsya/pneuscope/internal/handler/user"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/ml"
	mongorepo "github.com/rsyarsya/pneuscope/internal/repository/mongo"
	"github.com/rsyarsya/pneuscope/internal/repository/postgres"
	redisrepo "github.com/rsyarsya/pneuscope/internal/repository/redis"
	"github.com/rsyarsya/pneuscope/internal/router"
	assessmentService "github.com/rsyarsya/pneuscope/internal/service/assessment"
	auditService "github.com/rsyarsya/pneuscope/internal/service/audit"
	authService "github.com/rsyarsya/pneuscope/internal/service/auth"
	eventService "github.com/rsyarsya/pneuscope/internal/service/event"
	patientService "github.com/rsyarsya/pneuscope/internal/service/patient"
	userService "github.com/rsyarsya/pneuscope/internal/service/user"
	"github.com/rsyarsya/pneuscope/internal/stream"
	"github.com/rsyarsya/pneuscope/pkg/auth"
	"github.com/rsyarsya/pneuscope/pkg/logger"
	redisbroker "github.com/rsyarsya/pneuscope/pkg/messaging/redis"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
	"github.com/rsyarsya/pneuscope/pkg/security"
	"github.com/rsyarsya/pneuscope/pkg/validator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("API server failed")
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
		Service: "pneuscope-api",
	})
	lg.SetGlobal()
	validator.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mongoClient, mongoDB, err := mongorepo.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	if err := mongorepo.EnsureIndexes(ctx, mongoDB); err != nil {
		return err
	}

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
	defer redisClient.Close()

	m := metrics.NewMetrics("pneuscope")

	// Repositories
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	assessmentRepo := mongorepo.NewAssessmentRepository(mongoDB)
	tokenRepo := redisrepo.NewTokenRepository(redisClient)

	// Services
	events := eventService.NewService(outboxRepo)
	auditor := auditService.NewService(auditRepo)
	authSvc := authService.NewService(
		userRepo,
		tokenRepo,
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry),
		security.NewBcryptHasher(bcrypt.DefaultCost),
		events,
		auditor,
	)
	patientSvc := patientService.NewService(patientRepo, userRepo, assessmentRepo, events, auditor)
	predictor := ml.NewClient(ml.Config{
		URL:             cfg.ML.URL,
		Timeout:         cfg.ML.Timeout,
		BreakerFailures: cfg.ML.BreakerFailures,
		BreakerTimeout:  cfg.ML.BreakerTimeout,
	}, m)
	assessmentSvc := assessmentService.NewService(patientRepo, userRepo, assessmentRepo, predictor, events, auditor, m,
		assessmentService.Config{
			MaxSamples:        cfg.Predict.MaxSamples,
			HighRiskThreshold: cfg.Predict.HighRiskThreshold,
		})
	doctorSvc := userService.NewService(userRepo, events, auditor)

	hub := stream.NewHub(stream.Config{
		Interval:  cfg.Stream.Interval,
		BatchSize: cfg.Stream.BatchSize,
		Window:    cfg.Stream.Window,
	}, nil, m, *lg.Zerolog())

	// HTTP
	authMW := middleware.NewAuthMiddleware(authSvc, cfg.JWT.CookieName)
	r := router.NewRouter(router.Handlers{
		API: []router.Handler{
			authHandler.NewHandler(authSvc, authMW, cfg.Server.IsProduction()),
			patientHandler.NewHandler(patientSvc, authMW, auditor),
			assessmentHandler.NewHandler(assessmentSvc, authMW, auditor),
			userHandler.NewHandler(doctorSvc, authMW),
		},
		Stream: streamHandler.NewHandler(hub, cfg.CORS.AllowedOrigins),
		Health: health.NewHandler(map[string]health.Pinger{
			"postgres": health.PingFunc(db.PingContext),
			"mongo": health.PingFunc(func(ctx context.Context) error {
				return mongoClient.Ping(ctx, readpref.Primary())
			}),
			"redis": health.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
		Metric: prometheus.New(m),
	}, m, router.RouterConfig{
		Production:     cfg.Server.IsProduction(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimit:      cfg.RateLimit.Enabled,
		RateRPS:        cfg.RateLimit.RPS,
		RateBurst:      cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Str("env", cfg.Server.Env).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Websocket connections are hijacked, so the http server does not
		// wait for them.
		if err := hub.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Stream sessions did not close in time")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited properly")
	return nil
}
