package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/events"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/handler"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/repository"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/service"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/upload"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/config"
	pkglogger "github.com/cloud-wave-best-zizon/eshop-service/pkg/logger"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// publisher is what the order service and /health need from Kafka.
type publisher interface {
	service.EventPublisher
	handler.HealthChecker
	Close() error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := pkglogger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	if os.Getenv("GIN_MODE") == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("api_prefix", cfg.APIPrefix),
		zap.String("table", cfg.TableName),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.Bool("enforce_admin", cfg.EnforceAdmin))

	// Initialize components
	startCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dynamoClient, err := repository.NewDynamoDBClient(startCtx, cfg)
	if err != nil {
		logger.Fatal("Failed to create DynamoDB client", zap.Error(err))
	}
	if cfg.CreateTable {
		if err := repository.EnsureTable(startCtx, dynamoClient, cfg.TableName); err != nil {
			logger.Fatal("Failed to prepare DynamoDB table", zap.Error(err))
		}
		logger.Info("DynamoDB table ready", zap.String("table", cfg.TableName))
	}

	var producer publisher = events.NopProducer{}
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		producer = kafkaProducer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are discarded")
	}
	defer producer.Close()

	storage, err := upload.NewStorage(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("Failed to prepare upload dir", zap.Error(err))
	}

	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		logger.Fatal("Failed to create password hasher", zap.Error(err))
	}
	tokens, err := auth.NewTokenManager(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create token manager", zap.Error(err))
	}
	mid, err := middleware.NewMid(tokens, cfg.APIPrefix, logger)
	if err != nil {
		logger.Fatal("Failed to create auth middleware", zap.Error(err))
	}

	store := repository.NewStore(dynamoClient, cfg.TableName, cfg.StoreMaxRetries)
	categoryRepo := repository.NewCategoryRepository(store)
	productRepo := repository.NewProductRepository(store)
	userRepo := repository.NewUserRepository(store)
	orderRepo := repository.NewOrderRepository(store)

	catalogService := service.NewCatalogService(categoryRepo, productRepo, storage, logger)
	userService := service.NewUserService(userRepo, hasher, tokens, logger)
	orderService := service.NewOrderService(orderRepo, productRepo, userRepo, producer, logger)

	router := handler.API(handler.Options{
		Prefix:         cfg.APIPrefix,
		UploadDir:      storage.Dir(),
		RequestTimeout: cfg.RequestTimeout,
		EnforceAdmin:   cfg.EnforceAdmin,
		Mid:            mid,
		Kafka:          producer,
		Logger:         logger,
	},
		handler.NewCatalogHandler(catalogService, cfg.PublicBaseURL, logger),
		handler.NewUserHandler(userService, logger),
		handler.NewOrderHandler(orderService, cfg.EnforceAdmin, logger),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
