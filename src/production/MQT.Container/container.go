package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.ApiService/health"
	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	databaseConnectTimeout = 20 * time.Second
	redisPingTimeout       = 5 * time.Second
)

// Container owns the process-wide dependencies and their lifecycle
type Container struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	db    *sql.DB
	mongo *mongo.Client
	redis *redis.Client

	healthChecker   *health.HealthChecker
	databaseManager *health.DatabaseManager

	mu           sync.Mutex
	cleanupFuncs []func() error
}

// NewContainer loads configuration and builds the logger and metrics registry.
// Connections are opened lazily.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return New(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// New builds a container around an already loaded configuration
func New(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(),
	}
}

func (c *Container) GetConfig() *config.Config {
	return c.config
}

func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

// GetDatabase returns the Postgres pool, connecting on first use
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseLocked()
}

func (c *Container) databaseLocked() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}

	db, err := health.ConnectPostgresWithTimeout(c.config, databaseConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.db = db
	c.cleanupFuncs = append(c.cleanupFuncs, db.Close)

	c.logger.Logger.Info().
		Str("driver", c.config.Database.Driver).
		Str("host", c.config.Database.Host).
		Msg("Connected to PostgreSQL")
	return c.db, nil
}

// GetMongo returns the rejection archive client, or nil when MONGODB_URI is unset
func (c *Container) GetMongo() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Mongo.URI == "" {
		return nil, nil
	}
	if c.mongo != nil {
		return c.mongo, nil
	}

	client, err := health.ConnectMongoWithTimeout(&c.config.Mongo)
	if err != nil {
		return nil, err
	}
	c.mongo = client
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Mongo.Timeout)
		defer cancel()
		return client.Disconnect(ctx)
	})

	c.logger.Info("Connected to MongoDB rejection archive")
	return c.mongo, nil
}

// GetRedis returns the revocation store client, or nil when REDIS_ADDR is unset
func (c *Container) GetRedis() (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Redis.Addr == "" {
		return nil, nil
	}
	if c.redis != nil {
		return c.redis, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.config.Redis.Addr,
		Password: c.config.Redis.Password,
		DB:       c.config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping Redis: %w", err)
	}
	c.redis = client
	c.cleanupFuncs = append(c.cleanupFuncs, client.Close)

	c.logger.Info("Connected to Redis token store")
	return c.redis, nil
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker() (*health.HealthChecker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthChecker != nil {
		return c.healthChecker, nil
	}
	db, err := c.databaseLocked()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for health checker: %w", err)
	}
	c.healthChecker = health.NewHealthChecker(db)
	return c.healthChecker, nil
}

// GetDatabaseManager returns the database manager
func (c *Container) GetDatabaseManager() (*health.DatabaseManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.databaseManager != nil {
		return c.databaseManager, nil
	}
	db, err := c.databaseLocked()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for database manager: %w", err)
	}
	c.databaseManager = health.NewDatabaseManager(db)
	return c.databaseManager, nil
}

// InitializeDatabase connects and creates the schema
func (c *Container) InitializeDatabase(ctx context.Context) error {
	dbManager, err := c.GetDatabaseManager()
	if err != nil {
		return fmt.Errorf("failed to get database manager: %w", err)
	}

	if err := dbManager.CreateTables(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// HealthCheck reports readiness the same way /health/ready does
func (c *Container) HealthCheck(ctx context.Context) (map[string]interface{}, bool) {
	healthChecker, err := c.GetHealthChecker()
	if err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}, false
	}

	return healthChecker.GetHealthStatus(ctx)
}

// AddCleanupFunc registers fn to run on Shutdown
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs cleanup functions in reverse registration order
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			c.logger.Warn("Shutdown deadline reached, skipping remaining cleanups")
			break
		}
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
