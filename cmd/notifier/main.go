package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/audit"
	"dailyverse/internal/channel"
	"dailyverse/internal/config"
	"dailyverse/internal/delivery"
	"dailyverse/internal/httpserver"
	"dailyverse/internal/message"
	"dailyverse/internal/repository"
	"dailyverse/internal/trigger"
	"dailyverse/pkg/db"
	"dailyverse/pkg/logger"
	"dailyverse/pkg/mq"
	"dailyverse/pkg/otel"
	"dailyverse/pkg/outbox"
	"dailyverse/pkg/redis"
	"dailyverse/pkg/util"
)

const (
	serviceName   = "dailyverse-notifier"
	runQueue      = "delivery.run.requests"
	shutdownGrace = 30 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single delivery cycle and exit")
	testUser := flag.String("test-user", "", "send a test notification to this user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Debug)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(fmt.Errorf("%w: %w", delivery.ErrSystemFailure, err)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTracing()
	}

	// DB
	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(fmt.Errorf("%w: %w", delivery.ErrSystemFailure, err)))
	}
	defer pool.Close()

	// Redis claims are best effort; the unique index still blocks a second send.
	var claimer delivery.Claimer
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, running without delivery claims", zap.Error(err))
	} else {
		defer rdb.Close()
		claimer = util.NewDeduper(rdb, cfg.Delivery.ClaimTTL, log)
	}

	// Repositories
	prefRepo := repository.NewPreferenceRepository(pool, log)
	subRepo := repository.NewSubscriptionRepository(pool, log)
	deliveryRepo := repository.NewDeliveryRepository(pool, log)
	runRepo := repository.NewRunSummaryRepository(pool, log)
	outboxRepo := outbox.NewRepository(pool)

	// Channels
	pushSender := channel.NewWebPushSender(channel.PushConfig{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
		RatePerSecond:   cfg.Push.RatePerSecond,
		ClickURL:        cfg.Push.ClickURL,
	}, log)
	emailSender := channel.NewSMTPSender(channel.EmailConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}, log)

	orch, err := delivery.NewOrchestrator(delivery.Deps{
		Recipients:    prefRepo,
		Subscriptions: subRepo,
		Deliveries:    deliveryRepo,
		Recorder:      audit.NewRecorder(deliveryRepo, runRepo, cfg.Delivery.AlertThreshold, log),
		Claimer:       claimer,
		Push:          pushSender,
		Email:         emailSender,
		Messages:      message.NewTimeSeededGenerator(),
	}, delivery.Config{
		Workers:     cfg.Delivery.Workers,
		Timezone:    cfg.Delivery.Timezone,
		SendTimeout: cfg.Delivery.SendTimeout,
		Retry: delivery.RetryPolicy{
			MaxAttempts: cfg.Delivery.Retry.MaxAttempts,
			BaseDelay:   cfg.Delivery.Retry.BaseDelay,
			MaxDelay:    cfg.Delivery.Retry.MaxDelay,
		},
	}, log)
	if err != nil {
		log.Fatal("Failed to init orchestrator", zap.Error(err))
	}
	scheduler := trigger.NewScheduler(orch, cfg.Delivery.Interval, log)

	// MQ publisher; events wait in the outbox while it is down.
	var publisher *mq.Publisher
	if cfg.MQ.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Warn("Failed to init MQ publisher, events stay in outbox", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	if *testUser != "" || *once {
		if code := runOnce(ctx, log, scheduler, outboxRepo, publisher, *testUser); code != 0 {
			_ = log.Sync()
			os.Exit(code)
		}
		return
	}

	if publisher != nil {
		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go dispatcher.Start(ctx)

		consumer, err := mq.NewConsumer(cfg.MQ.URL, runQueue, mqcontracts.RoutingKeyRunRequested, log)
		if err != nil {
			log.Warn("Failed to init run request consumer", zap.Error(err))
		} else {
			defer consumer.Close()
			consumer.SetHandler(trigger.NewRunRequestHandler(scheduler, log))
			go func() {
				if err := consumer.StartConsuming(ctx); err != nil {
					log.Error("Run request consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	// HTTP
	var adminHandler *httpserver.AdminHandler
	if publisher != nil {
		adminHandler = httpserver.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher, log), log)
	}
	checks := map[string]httpserver.ReadinessCheck{
		"db": pool.Ping,
	}
	if publisher != nil {
		checks["mq"] = func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	router := httpserver.NewRouter(httpserver.NewRunHandler(scheduler, log), adminHandler, checks, cfg.Server.JWTSecret, log)
	srv := router.Server(cfg.Server.Port)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("Notifier is running",
		zap.Duration("interval", cfg.Delivery.Interval),
		zap.Int("workers", cfg.Delivery.Workers),
		zap.Bool("mq", publisher != nil),
		zap.Bool("claims", claimer != nil),
	)
	scheduler.Start(ctx)

	log.Info("Shutting down notifier gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("Notifier shutdown complete")
}

// runOnce serves -once and -test-user and returns the process exit code.
func runOnce(ctx context.Context, log *zap.Logger, s *trigger.Scheduler, repo *outbox.Repository, publisher *mq.Publisher, testUser string) int {
	code := 0
	if testUser != "" {
		res, err := s.TriggerTest(ctx, testUser)
		if err != nil {
			log.Error("Test run failed", zap.String("user_id", testUser), zap.Error(err))
			code = 1
		} else {
			log.Info("Test run finished",
				zap.String("user_id", res.UserID),
				zap.String("status", string(res.Status)),
				zap.String("channel", res.Channel),
				zap.Strings("errors", res.Errors),
			)
		}
	} else {
		summary, err := s.Trigger(ctx)
		if err != nil {
			log.Error("Delivery run failed", zap.Error(err))
			code = 1
		} else {
			log.Info("Delivery run finished",
				zap.String("run_id", summary.ID),
				zap.Int("users_processed", summary.UsersProcessed),
				zap.Int("notifications_sent", summary.NotificationsSent),
				zap.Int("errors", summary.Errors),
			)
		}
	}

	// Flush what this run wrote; anything left is picked up by the next dispatcher.
	if publisher != nil {
		n := outbox.NewDispatcher(repo, publisher, log).ProcessPending(context.WithoutCancel(ctx))
		log.Info("Outbox flushed", zap.Int("published", n))
	}
	return code
}
