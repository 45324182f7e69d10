// Package main provides the entry point for the Amaterasu campaign run service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/Amaterasu/app/handlers"
	"github.com/amirphl/Amaterasu/app/router"
	"github.com/amirphl/Amaterasu/app/scheduler"
	"github.com/amirphl/Amaterasu/app/services"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Amaterasu application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)
		if err := app.server.Listen(address); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down gracefully...")

		// Stop the watchdog before the server so no transition races shutdown
		for _, fn := range app.stopFuncs {
			fn()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return app.server.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		return
	}
	log.Println("Server stopped")
}

// initializeLogger builds the application logger on stdout, a rotated file, or both
func initializeLogger(cfg config.LoggingConfig) *log.Logger {
	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			log.Printf("Failed to create log directory, logging to stdout only: %v", err)
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	out := io.MultiWriter(writers...)
	log.SetOutput(out)
	return log.New(out, "", log.LstdFlags|log.LUTC)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *log.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// maps unique violations to gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			// bound parameters may hold message bodies
			ParameterizedQueries: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis. The returned func stops it.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeProvider(cfg config.ProviderConfig) services.MessagingProvider {
	switch cfg.Kind {
	case "mock":
		log.Println("Using mock messaging provider")
		return services.NewMockMessagingProvider()
	default:
		return services.NewHTTPMessagingProvider(cfg)
	}
}

func initializeLocker(cfg *config.ProductionConfig, rc *redis.Client) businessflow.Locker {
	if cfg.Scheduler.LockProvider == "redis" && rc != nil {
		log.Println("Using redis run locks")
		return services.NewRedisLocker(rc, cfg.Cache.RedisPrefix)
	}
	return businessflow.NewMemoryLocker()
}

func initializeEventPublisher(cfg config.EventsConfig) (services.RunEventPublisher, error) {
	if !cfg.Enabled {
		return services.NoopRunEventPublisher{}, nil
	}
	publisher, err := services.NewAMQPRunEventPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect run event publisher: %w", err)
	}
	return publisher, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	logger := initializeLogger(cfg.Logging)

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))
	}

	publisher, err := initializeEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)
	mediaRepo := repository.NewCustomerMediaRepository(db)
	audienceRepo := repository.NewAudienceRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	scheduledRunRepo := repository.NewScheduledRunRepository(db)
	runRepo := repository.NewRunRecordRepository(db)
	artifactRepo := repository.NewRunArtifactRepository(db)

	provider := initializeProvider(cfg.Provider)
	locker := initializeLocker(cfg, rc)

	// Initialize business flows
	executor := businessflow.NewExecutor(
		runRepo,
		artifactRepo,
		audienceRepo,
		customerRepo,
		mediaRepo,
		provider,
		publisher,
		cfg.Executor,
		cfg.Provider,
		logger,
	)
	campaignRunFlow := businessflow.NewCampaignRunFlow(
		campaignRepo,
		scheduledRunRepo,
		runRepo,
		executor,
		locker,
		cfg.Scheduler,
		cfg.Executor,
		cfg.Display,
		logger,
	)
	runRegistryFlow := businessflow.NewRunRegistryFlow(runRepo, artifactRepo, customerRepo, scheduledRunRepo)
	customerFlow := businessflow.NewCustomerFlow(customerRepo)
	mediaFlow := businessflow.NewMediaFlow(customerRepo, mediaRepo, provider, cfg.Provider, logger)
	audienceFlow := businessflow.NewAudienceFlow(audienceRepo, services.NewAudienceImporter())
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, customerRepo, audienceRepo, mediaRepo)

	// Initialize handlers
	customerHandler := handlers.NewCustomerHandler(customerFlow, mediaFlow)
	audienceHandler := handlers.NewAudienceHandler(audienceFlow)
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	runHandler := handlers.NewRunHandler(campaignRunFlow, runRegistryFlow)

	appRouter := router.NewFiberRouter(
		cfg,
		customerHandler,
		audienceHandler,
		campaignHandler,
		runHandler,
	)

	if cfg.Scheduler.Enabled {
		watchdog := scheduler.NewRunWatchdog(campaignRunFlow, cfg.Scheduler, cfg.Logging)
		stopFuncs = append(stopFuncs, watchdog.Start(context.Background()))
	}

	stopFuncs = append(stopFuncs, func() {
		if err := publisher.Close(); err != nil {
			logger.Printf("Failed to close run event publisher: %v", err)
		}
		if rc != nil {
			_ = rc.Close()
		}
	})

	fiberRouter := appRouter.(*router.FiberRouter)
	if sqlDB, err := db.DB(); err == nil {
		fiberRouter.AddHealthCheck("database", sqlDB.PingContext)
	}
	if rc != nil {
		fiberRouter.AddHealthCheck("cache", func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
