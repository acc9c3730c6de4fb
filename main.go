// Package main provides the main entry point for the WhatsFlow campaign dispatch engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmoretti/whatsflow/app/handlers"
	"github.com/lmoretti/whatsflow/app/router"
	"github.com/lmoretti/whatsflow/app/scheduler"
	"github.com/lmoretti/whatsflow/app/services"
	businessflow "github.com/lmoretti/whatsflow/business_flow"
	"github.com/lmoretti/whatsflow/config"
	"github.com/lmoretti/whatsflow/models"
	"github.com/lmoretti/whatsflow/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application bundles the wired components and their stop functions
type Application struct {
	router    router.Router
	config    *config.Config
	stopFuncs []func()
}

func main() {
	log.Println("Starting WhatsFlow campaign dispatch engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())

	app, err := initializeApplication(workerCtx, cfg)
	if err != nil {
		workerCancel()
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers before the HTTP server so in-flight drains
	// finish their current send.
	workerCancel()
	for _, fn := range app.stopFuncs {
		fn()
	}

	if err := app.router.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeApplication wires repositories, flows, workers and handlers
func initializeApplication(workerCtx context.Context, cfg *config.Config) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Tag{},
		&models.Contact{},
		&models.Campaign{},
		&models.DispatchLog{},
		&models.Message{},
	); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	var rc *redis.Client
	if cfg.Cache.Enabled {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rc = redis.NewClient(opts)
		if err := rc.Ping(workerCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		log.Println("Redis counts cache enabled")
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	logRepo := repository.NewDispatchLogRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Gateway client and template cache
	gateway := services.NewWhatsAppClient(cfg.Gateway)
	templateCache := scheduler.NewTemplateCache(gateway, cfg.Gateway.TemplateCacheTTL)

	// Background workers
	dispatchLogger := scheduler.NewWorkerLogger(cfg.Logging, "dispatcher")
	dispatcher := scheduler.NewDispatcher(
		workerCtx,
		campaignRepo,
		logRepo,
		contactRepo,
		messageRepo,
		gateway,
		cfg.Dispatch,
		cfg.Gateway.RequestTimeout,
		dispatchLogger,
	)

	flow := businessflow.NewCampaignFlow(
		campaignRepo,
		logRepo,
		contactRepo,
		dispatcher,
		db,
		rc,
		cfg.Cache.KeyPrefix,
		cfg.Cache.CountsTTL,
	)

	schedulerLogger := scheduler.NewWorkerLogger(cfg.Logging, "scheduler")
	campaignScheduler := scheduler.NewCampaignScheduler(
		campaignRepo,
		flow,
		cfg.Dispatch.SchedulerInterval,
		cfg.Dispatch.SchedulerPageSize,
		schedulerLogger,
	)
	stopScheduler := campaignScheduler.Start(workerCtx)

	reconciler := scheduler.NewStatusReconciler(logRepo, scheduler.NewWorkerLogger(cfg.Logging, "reconciler"))

	// Handlers and router
	campaignHandler := handlers.NewCampaignHandler(flow)
	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.Gateway.VerifyToken, schedulerLogger)
	templateHandler := handlers.NewTemplateHandler(templateCache)

	r := router.NewFiberRouter(campaignHandler, webhookHandler, templateHandler)

	stopFuncs := []func(){stopScheduler}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() {
			if err := rc.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		})
	}

	return &Application{
		router:    r,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}

// initializeDatabase opens the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
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

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}
