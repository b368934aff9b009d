package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "instapulse/contracts/mq"
	"instapulse/internal/handler"
	"instapulse/internal/httpserver"
	"instapulse/internal/insights"
	"instapulse/internal/mqhandler"
	"instapulse/internal/repository"
	"instapulse/internal/service/analytics"
	"instapulse/internal/service/auth"
	"instapulse/internal/service/post"
	"instapulse/pkg/config"
	"instapulse/pkg/db"
	"instapulse/pkg/logger"
	"instapulse/pkg/mq"
	"instapulse/pkg/otel"
	"instapulse/pkg/outbox"
	"instapulse/pkg/redis"
	"instapulse/pkg/util"
)

const (
	enrichmentQueue = "instapulse.post_enrichment"
	dedupTTL        = 24 * time.Hour
	retryCounterTTL = time.Hour
	refreshLockTTL  = 30 * time.Minute
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	env := config.GetConfigEnv()
	cfg, err := config.Load(env, config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT secret is not configured")
	}

	log.Info("Starting instapulse...",
		zap.String("env", env),
		zap.String("db_host", cfg.DB.Host),
		zap.String("insights_mode", cfg.Insights.Mode),
	)

	// OpenTelemetry
	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOTel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.EnsureSchema(schemaCtx, dbConn, log)
	schemaCancel()
	if err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Redis，可选
	rdb, err := redis.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	var (
		cmdable goredis.Cmdable
		runLock util.RunLock = util.NewLocalRunLock()
	)
	if rdb != nil {
		defer rdb.Close()
		cmdable = rdb
		runLock = util.NewRedisRunLock(rdb, refreshLockTTL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	accountRepo := repository.NewAccountRepository(dbConn)
	postRepo := repository.NewPostRepository(dbConn, outboxRepo)
	analyticsRepo := repository.NewAnalyticsRepository(dbConn)

	source, err := insights.New(cfg.Insights, log)
	if err != nil {
		log.Fatal("Failed to init insights source", zap.Error(err))
	}

	// Services
	authService := auth.NewService(accountRepo, cfg.JWT, log)
	postService := post.NewService(postRepo, log)
	analyticsService := analytics.NewService(postRepo, accountRepo, analyticsRepo, source, runLock, cfg.Insights, log)

	if err := authService.BootstrapAdmin(ctx, cfg.Admin); err != nil {
		log.Fatal("Failed to bootstrap admin", zap.Error(err))
	}

	// Messaging: RabbitMQ when configured, otherwise the in-process bus
	var (
		publisher mq.EventPublisher
		dlq       mq.DeadLetterPublisher
		consumer  *mq.Consumer
		bus       *mq.LocalBus
	)
	if cfg.MQ.URL != "" {
		amqpPublisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher, dlq = amqpPublisher, amqpPublisher

		consumer, err = mq.NewConsumer(cfg.MQ.URL, enrichmentQueue, mqcontracts.RoutingKeyPostSubmitted, log)
		if err != nil {
			log.Fatal("Failed to init MQ consumer", zap.Error(err))
		}
		defer consumer.Close()
	} else {
		log.Info("MQ not configured, using in-process bus")
		bus = mq.NewLocalBus(log, 256)
		publisher, dlq = bus, bus
	}

	enrichHandler := mqhandler.NewPostSubmittedHandler(
		postRepo,
		source,
		util.NewDeduper(cmdable, dedupTTL, log),
		util.NewRetryCounter(cmdable, retryCounterTTL),
		dlq,
		cfg.Insights.Timeout(),
		log,
	)
	if consumer != nil {
		consumer.SetHandler(enrichHandler.Handle)
		go func() {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer stopped", zap.Error(err))
			}
		}()
	} else {
		bus.Subscribe(mqcontracts.RoutingKeyPostSubmitted, enrichHandler.Handle)
		go bus.Run(ctx)
	}

	// Outbox dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(ctx)

	// Auto refresh
	scheduler := analytics.NewScheduler(analyticsService, cfg.Insights.AutoRefreshInterval(), log)
	go scheduler.Start(ctx)

	// HTTP Server
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Post:      handler.NewPostHandler(postService, log),
		Analytics: handler.NewAnalyticsHandler(analyticsService, log),
		Admin:     handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher, log), log),
	}, authService, dbConn, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("instapulse is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("instapulse shutdown complete")
}
