package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/bids"
	"expertmarket/marketplace-backend/internal/config"
	"expertmarket/marketplace-backend/internal/contracts"
	"expertmarket/marketplace-backend/internal/database"
	"expertmarket/marketplace-backend/internal/escrow"
	"expertmarket/marketplace-backend/internal/httpapi"
	"expertmarket/marketplace-backend/internal/notifications"
	"expertmarket/marketplace-backend/internal/notifications/websocket"
	"expertmarket/marketplace-backend/internal/orchestrator"
	"expertmarket/marketplace-backend/internal/payments"
	"expertmarket/marketplace-backend/internal/projects"
	"expertmarket/marketplace-backend/internal/vetting"
	"expertmarket/marketplace-backend/pkg/storage"
)

func main() {
	// Load .env for local development; ignore when absent
	godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Notification channels
	wsManager := websocket.NewManager(logger)
	channels := []notifications.Channel{notifications.NewWebSocketChannel(wsManager)}
	if cfg.Notifications.AWSRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Notifications.AWSRegion))
		if err != nil {
			logger.Warn("AWS config unavailable, email and sms channels disabled", zap.Error(err))
		} else {
			resolver := notifications.NewResolver(db)
			if cfg.Notifications.EmailSender != "" {
				channels = append(channels,
					notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.Notifications.EmailSender, resolver))
			}
			if cfg.Notifications.SMSEnabled {
				channels = append(channels,
					notifications.NewSMSChannel(sns.NewFromConfig(awsCfg), resolver))
			}
		}
	}
	notifier := notifications.NewService(db, logger, channels...)

	// Invoice archive
	var archive storage.Client
	if cfg.Notifications.AWSRegion != "" {
		archive, err = storage.NewS3Client(context.Background(), cfg.Notifications.AWSRegion)
		if err != nil {
			logger.Warn("S3 unavailable, archiving invoices in memory", zap.Error(err))
			archive = storage.NewMemoryClient()
		}
	} else {
		archive = storage.NewMemoryClient()
	}

	// Payment gateway
	var gateway payments.Gateway
	switch cfg.Payments.Provider {
	case "", "mock":
		gateway = payments.NewMockGateway()
	default:
		logger.Fatal("Unknown payment provider", zap.String("provider", cfg.Payments.Provider))
	}

	// Domain services
	projectsSvc := projects.NewService(projects.NewRepository(db))
	bidsSvc := bids.NewService(bids.NewRepository(db))
	contractsSvc := contracts.NewService(contracts.NewRepository(db), vetting.NewVerifier(db))
	escrowSvc := escrow.NewService(
		escrow.NewRepository(db),
		gateway,
		orchestrator.NewProjectSource(projectsSvc),
		contractsSvc,
		archive,
		cfg.Invoices.S3Bucket,
		logger,
	)

	orc := orchestrator.New(projectsSvc, bidsSvc, contractsSvc, escrowSvc, notifier, logger)
	handler := httpapi.NewHandler(orc, wsManager, cfg.Escrow, logger)

	// Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	handler.RegisterRoutes(router, cfg.Security.JWTSecret)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
