package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/YogevSaadon/Qode/internal/di"
	"github.com/YogevSaadon/Qode/internal/handler"
	"github.com/YogevSaadon/Qode/internal/metrics"
	"github.com/YogevSaadon/Qode/internal/repository"
	"github.com/YogevSaadon/Qode/internal/service"
	"github.com/YogevSaadon/Qode/pkg/config"
	"github.com/YogevSaadon/Qode/pkg/database"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/middleware"
	"github.com/YogevSaadon/Qode/pkg/redis"
	"github.com/YogevSaadon/Qode/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "qode-api"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Qode API...", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		appLog.Warn("Failed to initialize telemetry", zap.Error(err))
	} else if telemetryCfg.Enabled {
		appLog.Info("Telemetry initialized", zap.String("collector", telemetryCfg.CollectorAddr))
	}
	defer telemetry.Shutdown(context.Background())

	// Initialize the ticket store
	var store repository.Store
	switch cfg.Store.Backend {
	case "memory":
		store = repository.NewMemoryStore()
		appLog.Warn("Using in-memory store, state is lost on restart")
	default:
		dbCfg := &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		}
		db, err := database.NewPostgres(ctx, dbCfg)
		if err != nil {
			appLog.Fatal("Database connection failed", zap.Error(err))
		}
		defer db.Close()
		appLog.Info("Database connected",
			zap.Int32("min_conns", dbCfg.MinConns),
			zap.Int32("max_conns", dbCfg.MaxConns),
		)

		if err := metrics.RegisterDBPool(func() metrics.PoolStats { return db.Stats() }); err != nil {
			appLog.Warn("Failed to register pool metrics", zap.Error(err))
		}

		pgStore := repository.NewPostgresStore(db.Pool())
		if cfg.Database.AutoMigrate {
			if err := pgStore.EnsureSchema(ctx); err != nil {
				appLog.Fatal("Failed to apply schema", zap.Error(err))
			}
		}
		store = pgStore
	}

	// Initialize Redis (optional - relay, shared rate limits and idempotency are disabled without it)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisCfg := &redis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: time.Second,
		}
		redisClient, err = redis.NewClient(ctx, redisCfg)
		if err != nil {
			appLog.Warn("Redis connection failed, running single-instance", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			appLog.Info("Redis connected", zap.String("addr", redisCfg.Addr()))
		}
	}

	// Initialize the queue event publisher
	var publisher service.EventPublisher = service.NewNoOpEventPublisher()
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: serviceName,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("Kafka unavailable, queue events will not be published", zap.Error(err))
		} else {
			publisher = kafkaPublisher
			appLog.Info("Kafka event publisher ready", zap.String("topic", cfg.Kafka.Topic))
		}
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		AppName:            cfg.App.Name,
		Store:              store,
		Redis:              redisClient,
		Publisher:          publisher,
		Logger:             appLog,
		SecretKey:          cfg.Security.SecretKey,
		HostSessionTTL:     cfg.Security.HostSessionTTL,
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimitPerMinute: cfg.Security.RateLimitPerMinute,
	})
	defer container.Publisher.Close()

	if container.Relay != nil {
		go func() {
			if err := container.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("Queue update relay stopped", zap.Error(err))
			}
		}()
	}

	// Setup Gin
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Logger(appLog, "/health", "/ready", "/metrics"))
	router.Use(metrics.HTTPMiddleware())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	handler.RegisterRoutes(router, container.Routes())

	// Create HTTP server. No WriteTimeout: observer WebSockets are long-lived.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Qode API listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
