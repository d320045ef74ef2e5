// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/infrastructure/database/postgres"
	"github.com/your-org/ops-ledger/internal/infrastructure/database/redis"
	"github.com/your-org/ops-ledger/internal/interfaces/http"
	"github.com/your-org/ops-ledger/internal/interfaces/http/routes"
	"github.com/your-org/ops-ledger/internal/jobs"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	applogger "github.com/your-org/ops-ledger/internal/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := applogger.New(cfg)
	logger.WithFields(logrus.Fields{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Infof("Starting %s", cfg.App.Name)

	// Connect to database
	db, err := postgres.NewConnection(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Redis backs rate limiting and cross-instance locks; without it locks stay in-process
	var (
		redisClient *goredis.Client
		locker      lock.Locker = lock.NewLocal()
	)
	if cfg.Redis.Enabled {
		rc, err := redis.NewConnection(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rc.Close()

		redisClient = rc.GetClient()
		locker = rc.Locker(cfg, logger)
	} else {
		logger.Warn("Redis disabled: using in-process locks and no rate limiting")
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), logger)

	if err := migration.RunAutoMigrations(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	if err := migration.CreateIndexes(); err != nil {
		logger.WithError(err).Warn("Index creation failed")
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			logger.WithError(err).Warn("Data seeding failed")
		}
		if err := migration.GetTableInfo(); err != nil {
			logger.WithError(err).Warn("Failed to read table info")
		}
	}

	services := routes.NewServices(db.GetDB(), locker, cfg, logger)

	// Scheduled ledger audit
	var audit *jobs.LedgerAudit
	if cfg.Ledger.AuditSchedule != "" {
		audit = jobs.NewLedgerAudit(services.Ledger, cfg.Ledger.AuditSchedule, cfg.Ledger.AuditRepair, logger)
		if err := audit.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start ledger audit")
		}
	}

	server := http.NewServer(cfg, db.GetDB(), redisClient, services, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	if audit != nil {
		audit.Stop()
	}

	logger.Info("Server shutdown completed")
}
