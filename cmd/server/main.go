package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gotow/internal/config"
	"gotow/internal/handlers"
	"gotow/internal/middleware"
	"gotow/internal/repositories/mongodb"
	"gotow/internal/services"
	"gotow/internal/utils"
	"gotow/pkg/cache"
	"gotow/pkg/database"
	"gotow/pkg/logger"
	"gotow/pkg/maps"
	"gotow/pkg/push"
	"gotow/pkg/sms"
	"gotow/pkg/transport"
	"gotow/pkg/websocket"
	"gotow/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// MongoDB
	mongoDB, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureIndexes(indexCtx, mongoDB.Database); err != nil {
		appLogger.Fatalf("Failed to ensure indexes: %v", err)
	}
	cancelIndexes()

	// Redis. The dispatcher works without it, minus the cached fast
	// paths, idempotency reservations and rate limiting.
	var cacheService services.CacheService
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Warn("Redis unavailable, continuing without cache")
	} else {
		cacheService = services.NewCacheService(redisCache)
		defer redisCache.Close()
	}

	// Repositories
	requestRepo := mongodb.NewRequestRepository(mongoDB.Database, cacheService)
	providerRepo := mongodb.NewProviderRepository(mongoDB.Database, cacheService)
	eventRepo := mongodb.NewEventRepository(mongoDB.Database)
	outboxRepo := mongodb.NewOutboxRepository(mongoDB.Database)

	// Realtime and durable transport
	wsHandler := websocket.NewHandler(&websocket.Config{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	})
	deliverer := transport.NewCompositeDeliverer(
		services.NewOutboxStore(outboxRepo),
		transport.NewRealtimeDeliverer(wsHandler),
		appLogger,
	)

	// Outbound notification providers
	pushProvider := buildPushProvider(cfg.Push, appLogger)
	smsProvider := buildSMSProvider(cfg.SMS, appLogger)
	mapsProvider := buildMapsProvider(cfg.Maps, appLogger)

	// Services
	trackerService := services.NewTrackerService(requestRepo, eventRepo, wsHandler, appLogger)
	fanoutService := services.NewFanoutService(
		requestRepo, providerRepo, trackerService, deliverer,
		pushProvider, smsProvider, mapsProvider,
		cfg.Dispatch, appLogger,
	)
	intakeService := services.NewIntakeService(
		requestRepo, cacheService, trackerService, fanoutService, deliverer,
		cfg.Dispatch, appLogger,
	)
	arbiterService := services.NewArbiterService(
		requestRepo, providerRepo, eventRepo, trackerService, fanoutService, appLogger,
	)
	providerService := services.NewProviderService(providerRepo, requestRepo, deliverer, appLogger)

	// Background sweep: candidate timeouts, round advancement, expiry
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go fanoutService.RunScheduler(schedulerCtx)

	// HTTP server
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))

	requestHandler := handlers.NewRequestHandler(intakeService, trackerService)
	providerHandler := handlers.NewProviderHandler(providerService, arbiterService)

	routes.SetupHealthRoutes(router)
	v1 := router.Group("/api/v1")
	{
		routes.SetupDispatchRoutes(v1, requestHandler, providerHandler, wsHandler, cacheService, cfg.Security.JWTSecret)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.Infof("%s listening on port %d", utils.AppName, cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	stopScheduler()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
}

func buildPushProvider(cfg *config.PushConfig, log *logger.Logger) push.PushProvider {
	switch cfg.Provider {
	case "fcm":
		if cfg.FCM.Credentials == "" {
			log.Warn("FCM credentials not configured, push disabled")
			return nil
		}
		provider, err := push.NewFCMProvider(cfg.FCM.Credentials)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize FCM, push disabled")
			return nil
		}
		return provider
	case "apns":
		if cfg.APNS.KeyFile == "" {
			log.Warn("APNS key not configured, push disabled")
			return nil
		}
		provider, err := push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.BundleID, cfg.APNS.Production)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize APNS, push disabled")
			return nil
		}
		return provider
	default:
		log.Warnf("Unknown push provider %q, push disabled", cfg.Provider)
		return nil
	}
}

func buildSMSProvider(cfg *config.SMSConfig, log *logger.Logger) sms.SMSProvider {
	switch cfg.Provider {
	case "twilio":
		if cfg.Twilio.AccountSID == "" {
			log.Warn("Twilio not configured, SMS disabled")
			return nil
		}
		return sms.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	case "aws_sns":
		provider, err := sms.NewAWSSNSProvider(cfg.AWS.Region)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize SNS, SMS disabled")
			return nil
		}
		return provider
	default:
		log.Warnf("Unknown SMS provider %q, SMS disabled", cfg.Provider)
		return nil
	}
}

func buildMapsProvider(cfg *config.MapsConfig, log *logger.Logger) maps.MapsProvider {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	provider, err := maps.NewGoogleMapsProvider(cfg.APIKey)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize maps, falling back to haversine estimates")
		return nil
	}
	return provider
}
