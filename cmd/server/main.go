package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/position-ledger/internal/api"
	cacheredis "github.com/trogers1052/position-ledger/internal/cache/redis"
	"github.com/trogers1052/position-ledger/internal/config"
	"github.com/trogers1052/position-ledger/internal/database"
	"github.com/trogers1052/position-ledger/internal/kafka"
	"github.com/trogers1052/position-ledger/internal/service"
)

const repairLockTTL = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	var locks service.Locker
	if cfg.Redis.Addr != "" {
		redisClient, err := cacheredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		locks = cacheredis.NewRepairLock(redisClient, repairLockTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, repairs are not serialized across instances")
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	journal := service.NewJournal(db, locks, producer, logger, nil)
	handler := api.NewHandler(journal)

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: api.SetupRoutes(handler),
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("server stopped")
}
