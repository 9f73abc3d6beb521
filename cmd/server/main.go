package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voltgrid/csms/internal/adapter/cache"
	"github.com/voltgrid/csms/internal/adapter/http/fiber/handlers"
	"github.com/voltgrid/csms/internal/adapter/http/fiber/middleware"
	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/adapter/storage/postgres"
	"github.com/voltgrid/csms/internal/adapter/vault"
	wsAdapter "github.com/voltgrid/csms/internal/adapter/websocket"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp/handler"
	ocppserver "github.com/voltgrid/csms/internal/ocpp/server"
	"github.com/voltgrid/csms/internal/ocpp/session"
	"github.com/voltgrid/csms/internal/ports"
	"github.com/voltgrid/csms/internal/service/auth"
	"github.com/voltgrid/csms/internal/service/health"
	"github.com/voltgrid/csms/internal/service/liveness"
	"github.com/voltgrid/csms/internal/service/station"
	"github.com/voltgrid/csms/internal/service/transaction"
	"github.com/voltgrid/csms/pkg/config"
)

const (
	serviceName    = "voltgrid-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. Resolve Secrets from Vault (optional)
	if cfg.Vault.Enabled {
		secrets, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.SecretPath)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if url, err := secrets.GetDatabaseURL(); err == nil {
			cfg.Database.URL = url
		} else {
			logger.Warn("Vault database_url lookup failed", zap.Error(err))
		}
		if secret, err := secrets.GetJWTSecret(); err == nil {
			cfg.JWT.Secret = secret
		} else {
			logger.Warn("Vault jwt_secret lookup failed", zap.Error(err))
		}
	}

	// 4. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, serviceVersion, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 5. Initialize PostgreSQL Connection Pool
	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 6. Initialize Cache (Redis, local fallback)
	var stationCache ports.Cache
	stationCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process cache", zap.Error(err))
		stationCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer stationCache.Close()

	// 7. Initialize Message Queue
	var messageQueue queue.MessageQueue
	switch cfg.Queue.Driver {
	case "rabbitmq":
		messageQueue, err = queue.NewRabbitMQQueue(cfg.RabbitMQ.URL, logger)
	default:
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
	}
	if err != nil {
		logger.Fatal("Failed to connect to message queue",
			zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	defer messageQueue.Close()

	// 8. Initialize Repositories
	stationRepo := postgres.NewStationRepository(db, logger)
	connectorRepo := postgres.NewConnectorRepository(db, logger)
	transactionRepo := postgres.NewTransactionRepository(db, logger)
	userRepo := postgres.NewUserRepository(db, logger)

	// 9. Initialize Services (Business Logic Layer)
	stationService := station.NewService(stationRepo, connectorRepo, stationCache, messageQueue, cfg.OCPP.HeartbeatInterval, logger)
	transactionService := transaction.NewService(transactionRepo, connectorRepo, stationRepo, userRepo, messageQueue, cfg.OCPP.SampleCap, logger)
	authService := auth.NewService(userRepo, transactionRepo, cfg.JWT.Secret, cfg.JWT.AccessTokenDuration, logger)

	// 10. Initialize OCPP Server
	connRegistry := ocppserver.NewConnRegistry(logger, cfg.OCPP.TakeoverTimeout)
	dispatcher := ocppserver.NewDispatcher(connRegistry, logger)
	ocppHandler := handler.New(stationService, transactionService, authService, handler.NewDataTransferRegistry(), logger)
	ocppServer := ocppserver.NewServer(connRegistry, ocppHandler, session.Options{
		WriteQueueSize: cfg.OCPP.WriteQueueSize,
		CallTimeout:    cfg.OCPP.CommandTimeout,
	}, logger)

	go func() {
		logger.Info("Starting OCPP WebSocket Server", zap.Int("port", cfg.OCPP.Port))
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP Server failed", zap.Error(err))
		}
	}()

	// 11. Start Liveness Supervisor
	supervisorCtx, stopSupervisor := context.WithCancel(context.Background())
	defer stopSupervisor()
	supervisor := liveness.NewSupervisor(connRegistry, stationService, cfg.OCPP.LivenessInterval, cfg.OCPP.HeartbeatInterval, logger)
	go supervisor.Run(supervisorCtx)

	// 12. Initialize WebSocket Hub (real-time updates for dashboards)
	wsHub := wsAdapter.NewHub(logger)
	go wsHub.Run()
	if err := wsHub.BindQueue(messageQueue); err != nil {
		logger.Fatal("Failed to bind hub to message queue", zap.Error(err))
	}

	// 13. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.CORS))
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(logger))
	}

	// Health Check Endpoints
	healthService := health.NewService(&health.Config{
		Version:  serviceVersion,
		DB:       db,
		Cache:    stationCache,
		QueueURL: cfg.NATS.URL,
		Sessions: connRegistry.Count,
	}, logger)
	health.NewFiberHandler(healthService).RegisterRoutes(app)

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		path := cfg.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/api/v1")

	// Auth routes (public)
	authHandler := handlers.NewAuthHandler(authService, logger)
	v1.Post("/auth/login", authHandler.Login)

	// Protected routes
	protected := v1.Group("", middleware.AuthRequired(authService))
	protected.Get("/auth/me", authHandler.Me)

	// Station routes
	stationHandler := handlers.NewStationHandler(stationService, dispatcher, logger)
	protected.Get("/stations", stationHandler.List)
	protected.Get("/stations/connected", stationHandler.Connected)
	protected.Get("/stations/:id", stationHandler.Get)
	protected.Post("/stations", stationHandler.Register)

	// Command routes (operator-initiated OCPP calls)
	commandHandler := handlers.NewCommandHandler(dispatcher, cfg.OCPP.CommandTimeout, logger)
	protected.Post("/stations/:id/commands", commandHandler.Send)
	protected.Post("/commands/broadcast", commandHandler.Broadcast)

	// Transaction routes
	txHandler := handlers.NewTransactionHandler(transactionService, logger)
	protected.Get("/transactions", txHandler.List)
	protected.Get("/transactions/:key", txHandler.Get)

	// User routes
	userHandler := handlers.NewUserHandler(authService, logger)
	protected.Post("/users", userHandler.Create)
	protected.Get("/users", userHandler.List)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Real-time updates WebSocket
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		wsHub.AddClient(c)
	}))

	// 14. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 15. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSupervisor()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := ocppServer.Stop(ctx); err != nil {
		logger.Error("OCPP server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
