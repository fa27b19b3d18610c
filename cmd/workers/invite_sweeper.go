package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/config"
	"expertmarket/marketplace-backend/internal/database"
	"expertmarket/marketplace-backend/internal/projects"
)

// The sweeper cancels expert invites whose deadline has passed. Expiry goes
// through the regular project transition path so every cancellation leaves an
// audit record like any other state change.
func main() {
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	svc := projects.NewService(projects.NewRepository(db))

	schedule := os.Getenv("INVITE_SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 10m"
	}

	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		expired, err := svc.ExpireInvites(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("Invite sweep failed", zap.Error(err))
			return
		}
		if expired > 0 {
			logger.Info("Expired stale invites", zap.Int("count", expired))
		}
	})
	if err != nil {
		logger.Fatal("Invalid sweep schedule", zap.String("schedule", schedule), zap.Error(err))
	}

	c.Start()
	logger.Info("Invite sweeper started", zap.String("schedule", schedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping invite sweeper...")
	<-c.Stop().Done()
	logger.Info("Invite sweeper stopped")
}
