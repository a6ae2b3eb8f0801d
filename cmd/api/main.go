package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/market-console/finance-portal/internal/api/handlers"
	"github.com/market-console/finance-portal/internal/application"
	"github.com/market-console/finance-portal/internal/infrastructure/clients"
	"github.com/market-console/finance-portal/internal/infrastructure/notify"
	"github.com/market-console/finance-portal/pkg/cloudevents"
	"github.com/market-console/finance-portal/pkg/kafka"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/metrics"
	"github.com/market-console/finance-portal/pkg/middleware"
	"github.com/market-console/finance-portal/pkg/resilience"
	"github.com/market-console/finance-portal/pkg/tracing"
)

const serviceName = "finance-portal"

func main() {
	config, err := loadConfig()

	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	if config != nil {
		logConfig.Level = logging.ParseLevel(config.LogLevel)
		logConfig.Environment = config.Environment
	}
	logger := logging.New(logConfig)
	logger.SetDefault()

	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	logger.Info("Starting finance-portal API")
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = config.Environment
	tracingConfig.Enabled = config.TracingOn

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "enabled", tracingConfig.Enabled, "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	breakers := resilience.NewCircuitBreakerRegistry(logger.Logger, m)
	breaker := breakers.GetWithConfig(clients.FinanceBreakerConfig())
	financeClient := clients.NewFinanceClient(clients.FinanceClientConfig{
		BaseURL: config.UpstreamBaseURL,
		Timeout: config.UpstreamTimeout,
	}, breaker, logger, m)
	logger.Info("Finance client initialized", "upstream", config.UpstreamBaseURL, "timeout", config.UpstreamTimeout)

	// Export notifications: always logged, published to Kafka when enabled
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	var producer *kafka.Producer
	if config.KafkaEnabled {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = config.KafkaBrokers
		producer = kafka.NewProducer(kafkaConfig)
		publisher := kafka.NewInstrumentedProducer(producer, m, logger)
		notifiers = append(notifiers, notify.NewEventNotifier(
			publisher,
			cloudevents.NewEventFactory("/"+serviceName),
			config.KafkaExportTopic,
			logger,
		))
		logger.Info("Kafka export events enabled", "brokers", config.KafkaBrokers, "topic", config.KafkaExportTopic)
	}

	store := application.NewSessionStore(config.SessionTTL, func(sessionID string) *application.FinancePage {
		return application.NewFinancePage(financeClient, application.PageConfig{
			SessionID: sessionID,
			Location:  config.Location,
			Logger:    logger,
			Metrics:   m,
			Notifier:  notifiers,
		})
	}, m, logger)

	financeHandler := handlers.NewFinanceHandler(store, config.Location, logger)

	// Setup Gin router with middleware
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.Validations = handlers.Validations()
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		for name, status := range breakers.Status() {
			if status.State == gobreaker.StateOpen.String() {
				return fmt.Errorf("%s: %w", name, resilience.ErrCircuitOpen)
			}
		}
		return nil
	}))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API v1 routes
	rateLimit := middleware.DefaultRateLimitConfig()
	rateLimit.RequestsPerSecond = config.RateLimitRPS
	rateLimit.Burst = config.RateLimitBurst
	finance := router.Group("/api/v1/finance", middleware.SessionAuth(), middleware.RateLimit(rateLimit))
	financeHandler.RegisterRoutes(finance)

	// a refresh can hold the response for up to the upstream timeout
	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.UpstreamTimeout + 15*time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server started", "addr", config.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	store.Close()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close Kafka producer")
		}
	}

	logger.Info("Server stopped")
}
