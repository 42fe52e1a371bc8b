package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"notifier/internal/adminapi"
	"notifier/internal/audit"
	"notifier/internal/broker"
	"notifier/internal/config"
	"notifier/internal/constants"
	"notifier/internal/devices"
	"notifier/internal/locks"
	"notifier/internal/logger"
	"notifier/internal/notification"
	"notifier/internal/push"
	"notifier/pkg/bootstrap"
	"notifier/pkg/circuitbreaker"
	"notifier/pkg/health"
	"notifier/pkg/metrics"
	"notifier/pkg/middleware"
	"notifier/pkg/migrations"
	"notifier/pkg/ratelimit"
	"notifier/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	mongoClient    *mongo.Client
	redis          *redis.Client
	manager        *broker.ConnectionManager
	consumer       *broker.Consumer
	gate           *locks.Gate
	deviceService  *devices.Service
	auditPublisher *audit.Publisher
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameConsumer)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := config.ValidateStatic(a.Config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameConsumer)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterBrokerMetrics()
	metrics.RegisterLockMetrics()
	metrics.RegisterPushMetrics()
	metrics.RegisterAuditMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	if err := a.initConsumer(); err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	db := mongoClient.Database(a.Config.Database.MongoDB.Database)
	if err := migrations.EnsureMongoCollections(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure collections: %w", err)
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis connection failed, device cache disabled", "error", err)
	} else {
		a.redis = rdb
	}

	return nil
}

func (a *App) initConsumer() error {
	db := a.mongoClient.Database(a.Config.Database.MongoDB.Database)

	a.gate = locks.NewGate(locks.NewRepository(db), a.Logger)

	var deviceCache *devices.Cache
	if a.redis != nil {
		ttl := time.Duration(a.Config.Database.Redis.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		deviceCache = devices.NewCache(a.redis, ttl)
	}
	a.deviceService = devices.NewService(devices.NewRepository(db), deviceCache, a.Logger)

	var breaker *circuitbreaker.Wrapper
	if a.Config.CircuitBreaker.Enabled {
		breaker = circuitbreaker.NewWrapper(a.breakerConfig())
	}
	dispatcher := push.NewDispatcher(a.Config.PushGateway, breaker, a.Logger)

	a.auditPublisher = audit.NewPublisher(a.Config.Audit, a.Logger)

	service := notification.NewService(
		a.Config.Notification,
		a.gate,
		a.deviceService,
		dispatcher,
		a.auditPublisher,
		a.Logger,
	)

	registry := broker.NewRegistry()
	if err := registry.Register(a.Config.Notification.Queue, notification.NewHandler(service, a.Logger)); err != nil {
		return err
	}

	a.manager = broker.NewConnectionManager(a.Config.Broker.Connection, a.Logger)
	a.consumer = broker.NewConsumer(a.Config.Broker, a.manager, registry, a.Logger)
	return nil
}

func (a *App) breakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("push-gateway")
	if a.Config.CircuitBreaker.MaxRequests > 0 {
		cfg.MaxRequests = a.Config.CircuitBreaker.MaxRequests
	}
	if a.Config.CircuitBreaker.Interval > 0 {
		cfg.Interval = a.Config.CircuitBreaker.Interval
	}
	if a.Config.CircuitBreaker.Timeout > 0 {
		cfg.Timeout = a.Config.CircuitBreaker.Timeout
	}
	return cfg
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceNameConsumer))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
	}

	adminapi.NewHandler(a.gate, a.deviceService, a.Logger).RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	healthRegistry.Register(health.NewBrokerChecker(func() (health.BrokerConn, error) {
		return a.manager.Connection()
	}))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if err := a.consumer.Start(gCtx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down notification consumer")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.consumer != nil {
			if err := a.consumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("consumer close error: %w", err))
			}
		}

		if a.manager != nil {
			if err := a.manager.Close(); err != nil {
				errs = append(errs, fmt.Errorf("broker connection close error: %w", err))
			}
		}

		if a.auditPublisher != nil {
			if err := a.auditPublisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("audit publisher close error: %w", err))
			}
		}

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
