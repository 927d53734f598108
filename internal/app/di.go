// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/rueidis"

	"github.com/allisson/orders/internal/config"
	"github.com/allisson/orders/internal/database"
	"github.com/allisson/orders/internal/http"
	idempotencyRepository "github.com/allisson/orders/internal/idempotency/repository"
	idempotencyUsecase "github.com/allisson/orders/internal/idempotency/usecase"
	"github.com/allisson/orders/internal/metrics"
	ordersHTTP "github.com/allisson/orders/internal/orders/http"
	ordersRepository "github.com/allisson/orders/internal/orders/repository"
	ordersUsecase "github.com/allisson/orders/internal/orders/usecase"
	outboxRepository "github.com/allisson/orders/internal/outbox/repository"
	outboxService "github.com/allisson/orders/internal/outbox/service"
	outboxUsecase "github.com/allisson/orders/internal/outbox/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	outboxMetrics   metrics.OutboxMetrics

	// Repositories
	orderRepo       ordersUsecase.OrderRepository
	outboxRepo      outboxUsecase.OutboxRepository
	idempotencyRepo idempotencyUsecase.IdempotencyKeyRepository

	// Use Cases
	guard        idempotencyUsecase.Guard
	orderUseCase ordersUsecase.OrderUseCase
	dispatcher   outboxUsecase.DispatcherUseCase
	sweeper      outboxUsecase.SweeperUseCase

	// Broker
	eventRouter outboxUsecase.EventRouter
	publisher   outboxUsecase.Publisher
	amqpConn    *amqp.Connection
	amqpChannel *amqp.Channel
	redisClient rueidis.Client

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	outboxMetricsInit   sync.Once
	orderRepoInit       sync.Once
	outboxRepoInit      sync.Once
	idempotencyRepoInit sync.Once
	guardInit           sync.Once
	orderUseCaseInit    sync.Once
	eventRouterInit     sync.Once
	publisherInit       sync.Once
	dispatcherInit      sync.Once
	sweeperInit         sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := c.initDB()
		if err != nil {
			c.initErrors["db"] = err
			return
		}
		c.db = db
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		txManager, err := c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
			return
		}
		c.txManager = txManager
	})
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op recorder is
// returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		businessMetrics, err := c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		c.businessMetrics = businessMetrics
	})
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// OutboxMetrics returns the outbox metrics recorder. A no-op recorder is
// returned when metrics are disabled.
func (c *Container) OutboxMetrics() (metrics.OutboxMetrics, error) {
	c.outboxMetricsInit.Do(func() {
		outboxMetrics, err := c.initOutboxMetrics()
		if err != nil {
			c.initErrors["outboxMetrics"] = err
			return
		}
		c.outboxMetrics = outboxMetrics
	})
	if storedErr, exists := c.initErrors["outboxMetrics"]; exists {
		return nil, storedErr
	}
	return c.outboxMetrics, nil
}

// OrderRepository returns the order repository instance.
func (c *Container) OrderRepository() (ordersUsecase.OrderRepository, error) {
	c.orderRepoInit.Do(func() {
		repo, err := c.initOrderRepository()
		if err != nil {
			c.initErrors["orderRepo"] = err
			return
		}
		c.orderRepo = repo
	})
	if storedErr, exists := c.initErrors["orderRepo"]; exists {
		return nil, storedErr
	}
	return c.orderRepo, nil
}

// OutboxRepository returns the outbox record repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxRepository, error) {
	c.outboxRepoInit.Do(func() {
		repo, err := c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
			return
		}
		c.outboxRepo = repo
	})
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// IdempotencyKeyRepository returns the idempotency key repository instance.
func (c *Container) IdempotencyKeyRepository() (idempotencyUsecase.IdempotencyKeyRepository, error) {
	c.idempotencyRepoInit.Do(func() {
		repo, err := c.initIdempotencyKeyRepository()
		if err != nil {
			c.initErrors["idempotencyRepo"] = err
			return
		}
		c.idempotencyRepo = repo
	})
	if storedErr, exists := c.initErrors["idempotencyRepo"]; exists {
		return nil, storedErr
	}
	return c.idempotencyRepo, nil
}

// Guard returns the idempotency guard instance.
func (c *Container) Guard() (idempotencyUsecase.Guard, error) {
	c.guardInit.Do(func() {
		guard, err := c.initGuard()
		if err != nil {
			c.initErrors["guard"] = err
			return
		}
		c.guard = guard
	})
	if storedErr, exists := c.initErrors["guard"]; exists {
		return nil, storedErr
	}
	return c.guard, nil
}

// OrderUseCase returns the order use case instance.
func (c *Container) OrderUseCase() (ordersUsecase.OrderUseCase, error) {
	c.orderUseCaseInit.Do(func() {
		useCase, err := c.initOrderUseCase()
		if err != nil {
			c.initErrors["orderUseCase"] = err
			return
		}
		c.orderUseCase = useCase
	})
	if storedErr, exists := c.initErrors["orderUseCase"]; exists {
		return nil, storedErr
	}
	return c.orderUseCase, nil
}

// EventRouter returns the event type to destination router.
func (c *Container) EventRouter() (outboxUsecase.EventRouter, error) {
	c.eventRouterInit.Do(func() {
		c.eventRouter = outboxService.NewStaticRouter(nil)
	})
	return c.eventRouter, nil
}

// Publisher returns the broker publisher selected by the broker driver.
func (c *Container) Publisher() (outboxUsecase.Publisher, error) {
	c.publisherInit.Do(func() {
		publisher, err := c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
			return
		}
		c.publisher = publisher
	})
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// Dispatcher returns the outbox dispatcher instance.
func (c *Container) Dispatcher() (outboxUsecase.DispatcherUseCase, error) {
	c.dispatcherInit.Do(func() {
		dispatcher, err := c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
			return
		}
		c.dispatcher = dispatcher
	})
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

// Sweeper returns the outbox retention sweeper instance.
func (c *Container) Sweeper() (outboxUsecase.SweeperUseCase, error) {
	c.sweeperInit.Do(func() {
		sweeper, err := c.initSweeper()
		if err != nil {
			c.initErrors["sweeper"] = err
			return
		}
		c.sweeper = sweeper
	})
	if storedErr, exists := c.initErrors["sweeper"]; exists {
		return nil, storedErr
	}
	return c.sweeper, nil
}

// HTTPServer returns the HTTP server instance with all routes registered.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		server, err := c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		c.httpServer = server
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server instance.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		server, err := c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		c.metricsServer = server
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.amqpChannel != nil {
		if err := c.amqpChannel.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("amqp channel close: %w", err))
		}
	}

	if c.amqpConn != nil {
		if err := c.amqpConn.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("amqp connection close: %w", err))
		}
	}

	if c.redisClient != nil {
		c.redisClient.Close()
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initOutboxMetrics creates the outbox metrics recorder.
func (c *Container) initOutboxMetrics() (metrics.OutboxMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for outbox metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpOutboxMetrics(), nil
	}
	return metrics.NewOutboxMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initOrderRepository creates the order repository instance.
func (c *Container) initOrderRepository() (ordersUsecase.OrderRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for order repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return ordersRepository.NewMySQLOrderRepository(db), nil
	case "postgres":
		return ordersRepository.NewPostgreSQLOrderRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxRepository creates the outbox record repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initIdempotencyKeyRepository creates the idempotency key repository instance.
func (c *Container) initIdempotencyKeyRepository() (idempotencyUsecase.IdempotencyKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for idempotency repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return idempotencyRepository.NewMySQLIdempotencyRepository(db), nil
	case "postgres":
		return idempotencyRepository.NewPostgreSQLIdempotencyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initGuard creates the idempotency guard with all its dependencies.
func (c *Container) initGuard() (idempotencyUsecase.Guard, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for idempotency guard: %w", err)
	}

	keyRepo, err := c.IdempotencyKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency repository for guard: %w", err)
	}

	guardConfig := idempotencyUsecase.Config{
		TTL:             c.config.IdempotencyTTL,
		InFlightTimeout: c.config.IdempotencyInFlightTimeout,
	}

	return idempotencyUsecase.NewGuard(guardConfig, txManager, keyRepo, c.Logger()), nil
}

// initOrderUseCase creates the order use case with all its dependencies.
func (c *Container) initOrderUseCase() (ordersUsecase.OrderUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for order use case: %w", err)
	}

	orderRepo, err := c.OrderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get order repository for order use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for order use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for order use case: %w", err)
	}

	useCaseConfig := ordersUsecase.Config{
		MinAmount:        c.config.OrderMinAmount,
		MaxAmount:        c.config.OrderMaxAmount,
		MaxItems:         c.config.OrderMaxItems,
		MaxOpenPerUser:   c.config.OrderMaxOpenPerUser,
		OutboxMaxRetries: c.config.OutboxMaxRetries,
	}

	useCase := ordersUsecase.NewOrderUseCase(useCaseConfig, txManager, orderRepo, outboxRepo, c.Logger())

	return ordersUsecase.NewOrderUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initPublisher creates the broker publisher selected by the broker driver.
// Connection handles are kept on the container so Shutdown can close them.
func (c *Container) initPublisher() (outboxUsecase.Publisher, error) {
	switch c.config.BrokerDriver {
	case "amqp":
		conn, channel, err := outboxService.DialAMQP(c.config.BrokerURL, c.config.BrokerExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
		}
		c.amqpConn = conn
		c.amqpChannel = channel
		return outboxService.NewAMQPPublisher(channel, c.config.BrokerExchange), nil
	case "redis":
		client, err := outboxService.NewRedisClient(c.config.BrokerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis broker: %w", err)
		}
		c.redisClient = client
		return outboxService.NewRedisStreamPublisher(client), nil
	default:
		return nil, fmt.Errorf("unsupported broker driver: %s", c.config.BrokerDriver)
	}
}

// outboxConfig maps the application configuration to the outbox settings.
func (c *Container) outboxConfig() outboxUsecase.Config {
	return outboxUsecase.Config{
		Enabled:         c.config.OutboxEnabled,
		PollInterval:    c.config.OutboxPollInterval,
		BatchSize:       c.config.OutboxBatchSize,
		MaxRetries:      c.config.OutboxMaxRetries,
		BaseBackoff:     c.config.OutboxBaseBackoff,
		MaxBackoff:      c.config.OutboxMaxBackoff,
		PublishTimeout:  c.config.OutboxPublishTimeout,
		WorkerCount:     c.config.OutboxWorkerCount,
		RetentionWindow: c.config.OutboxRetentionWindow,
		SweepInterval:   c.config.OutboxSweepInterval,
	}
}

// initDispatcher creates the outbox dispatcher with all its dependencies.
func (c *Container) initDispatcher() (outboxUsecase.DispatcherUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for dispatcher: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for dispatcher: %w", err)
	}

	eventRouter, err := c.EventRouter()
	if err != nil {
		return nil, fmt.Errorf("failed to get event router for dispatcher: %w", err)
	}

	publisher, err := c.Publisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher for dispatcher: %w", err)
	}

	outboxMetrics, err := c.OutboxMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox metrics for dispatcher: %w", err)
	}

	return outboxUsecase.NewDispatcher(
		c.outboxConfig(),
		txManager,
		outboxRepo,
		eventRouter,
		publisher,
		outboxMetrics,
		c.Logger(),
	), nil
}

// initSweeper creates the outbox retention sweeper.
func (c *Container) initSweeper() (outboxUsecase.SweeperUseCase, error) {
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for sweeper: %w", err)
	}

	return outboxUsecase.NewSweeper(c.outboxConfig(), outboxRepo, c.Logger()), nil
}

// initHTTPServer creates the HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	orderUseCase, err := c.OrderUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get order use case for http server: %w", err)
	}

	guard, err := c.Guard()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency guard for http server: %w", err)
	}

	orderHandler := ordersHTTP.NewOrderHandler(orderUseCase, guard, logger)

	var extraMiddlewares []gin.HandlerFunc

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}
	if provider != nil {
		extraMiddlewares = append(
			extraMiddlewares,
			metrics.HTTPMetricsMiddleware(provider.MeterProvider(), c.config.MetricsNamespace),
		)
	}

	extraMiddlewares = append(
		extraMiddlewares,
		http.CORSMiddleware(c.config.CORSEnabled, c.config.CORSAllowOrigins, logger),
	)

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(orderHandler, extraMiddlewares...)

	return server, nil
}

// initMetricsServer creates the Prometheus metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}
