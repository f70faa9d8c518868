package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/habitsforgood/reminder-engine/internal/config"
	"github.com/habitsforgood/reminder-engine/internal/email"
	"github.com/habitsforgood/reminder-engine/internal/handler"
	"github.com/habitsforgood/reminder-engine/internal/infra/postgresql"
	"github.com/habitsforgood/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/habitsforgood/reminder-engine/internal/infra/redis"
	"github.com/habitsforgood/reminder-engine/internal/observability"
	"github.com/habitsforgood/reminder-engine/internal/provider"
	"github.com/habitsforgood/reminder-engine/internal/queue"
	"github.com/habitsforgood/reminder-engine/internal/repository"
	"github.com/habitsforgood/reminder-engine/internal/service"
	"github.com/habitsforgood/reminder-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("reminder-engine stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	workQueue, err := queue.NewGormQueue(db, cfg.LeaseTTL, cfg.FailedRetention)
	if err != nil {
		return fmt.Errorf("work queue initialization failed: %w", err)
	}
	enrollments := repository.NewGormEnrollmentRepo(db)
	logs := repository.NewGormNotificationLogRepo(db)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	mailer, err := provider.NewHTTPMailer(cfg.MailEndpoint, cfg.MailFrom, cfg.MailTimeout)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	signer, err := email.NewTokenSigner(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("token signer initialization failed: %w", err)
	}
	composer, err := email.NewComposer(signer, cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("composer initialization failed: %w", err)
	}

	deliverer, err := service.NewDeliverer(enrollments, logs, composer, mailer, rateLimiter, logger)
	if err != nil {
		return fmt.Errorf("deliverer initialization failed: %w", err)
	}
	deliverer.SetMetrics(metrics)

	selector, err := service.NewSelector(enrollments, logger)
	if err != nil {
		return fmt.Errorf("selector initialization failed: %w", err)
	}

	retryPolicy := queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}
	scheduler, err := service.NewScheduler(selector, workQueue, retryPolicy, cfg.TargetLocalHour, cfg.TickInterval, logger)
	if err != nil {
		return fmt.Errorf("scheduler initialization failed: %w", err)
	}
	scheduler.SetMetrics(metrics)

	workers, err := service.NewWorkerService(workQueue, deliverer, cfg.WorkerConcurrency, cfg.LeasePollInterval, logger)
	if err != nil {
		return fmt.Errorf("worker pool initialization failed: %w", err)
	}
	workers.SetMetrics(metrics)

	janitor, err := service.NewQueueJanitor(workQueue, cfg.PurgeInterval, logger)
	if err != nil {
		return fmt.Errorf("janitor initialization failed: %w", err)
	}
	janitor.SetMetrics(metrics)

	trigger, err := service.NewTriggerService(enrollments, logs, deliverer, cfg.SkipAlreadyNotified, logger)
	if err != nil {
		return fmt.Errorf("trigger service initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "reminder-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(func(c *fiber.Ctx) error {
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), rid))
		}
		return c.Next()
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterReminderRoutes(app, trigger, logs); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Start(groupCtx) })
	g.Go(func() error { return workers.Start(groupCtx) })
	g.Go(func() error { return janitor.Start(groupCtx) })
	g.Go(func() error {
		logger.Info("reminder-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("reminder-engine stopped")
	return nil
}
