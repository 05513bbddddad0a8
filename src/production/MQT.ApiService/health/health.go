package health

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const version = "1.0.0"

// BrokerStatus reports whether the broker connection is currently up
type BrokerStatus func() bool

// HealthChecker provides health check functionality
type HealthChecker struct {
	db     *sql.DB
	broker BrokerStatus
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB) *HealthChecker {
	return &HealthChecker{db: db}
}

// SetBrokerStatus wires the supervisor's connection state into readiness
func (h *HealthChecker) SetBrokerStatus(status BrokerStatus) {
	h.broker = status
}

// PingPostgres checks if the PostgreSQL connection is healthy
func (h *HealthChecker) PingPostgres(ctx context.Context) error {
	if h.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return h.db.PingContext(ctx)
}

// CheckDatabaseHealth pings and runs a trivial query
func (h *HealthChecker) CheckDatabaseHealth(ctx context.Context) error {
	if err := h.PingPostgres(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}

	return nil
}

// BrokerConnected is true when no broker status is wired or the broker is up
func (h *HealthChecker) BrokerConnected() bool {
	if h.broker == nil {
		return true
	}
	return h.broker()
}

// GetHealthStatus returns the current health status and whether every check passed
func (h *HealthChecker) GetHealthStatus(ctx context.Context) (map[string]interface{}, bool) {
	checks := make(map[string]interface{})
	healthy := true

	if err := h.CheckDatabaseHealth(ctx); err != nil {
		healthy = false
		checks["postgres"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		checks["postgres"] = map[string]interface{}{"status": "ok"}
	}

	if h.broker != nil {
		if h.broker() {
			checks["broker"] = map[string]interface{}{"status": "ok"}
		} else {
			healthy = false
			checks["broker"] = map[string]interface{}{"status": "disconnected"}
		}
	}

	overall := "ok"
	if !healthy {
		overall = "degraded"
	}

	return map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version,
		"status":    overall,
		"checks":    checks,
	}, healthy
}

// DatabaseManager handles database operations
type DatabaseManager struct {
	db *sql.DB
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// ConnectPostgresWithTimeout opens the pool with the configured driver and pings it
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open(cfg.Database.Driver, cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectMongoWithTimeout connects to the rejection archive
func ConnectMongoWithTimeout(cfg *config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI)
	clientOptions.SetServerSelectionTimeout(cfg.Timeout)
	clientOptions.SetConnectTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

// RejectionCollection returns the collection holding rejected broker messages
func RejectionCollection(client *mongo.Client, cfg *config.MongoConfig) *mongo.Collection {
	return client.Database(cfg.Database).Collection(cfg.Collection)
}

// BrokerTLSConfig builds the TLS settings for tcps/wss broker URLs. A CA file is optional.
func BrokerTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	if !cfg.UseTLS {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACertPath == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("read broker CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("broker CA file %s contains no certificates", cfg.CACertPath)
	}
	tlsConfig.RootCAs = pool

	return tlsConfig, nil
}

// CreateTables creates the required tables if they don't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, query := range schema {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id     TEXT PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		email       TEXT NOT NULL DEFAULT '',
		password    TEXT NOT NULL,
		role        TEXT NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT true,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,

	`CREATE TABLE IF NOT EXISTS devices (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		user_id     TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, name)
	);`,

	`CREATE TABLE IF NOT EXISTS temperatures (
		id          BIGSERIAL PRIMARY KEY,
		value       DOUBLE PRECISION NOT NULL,
		"timestamp" TIMESTAMPTZ NOT NULL,
		device_id   BIGINT NOT NULL REFERENCES devices(id) ON DELETE CASCADE
	);`,

	`CREATE TABLE IF NOT EXISTS plants (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		location    TEXT,
		user_id     TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, name)
	);`,

	`CREATE TABLE IF NOT EXISTS sensors (
		id          BIGSERIAL PRIMARY KEY,
		type        TEXT NOT NULL,
		unit        TEXT NOT NULL,
		plant_id    BIGINT NOT NULL REFERENCES plants(id) ON DELETE CASCADE
	);`,

	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id          BIGSERIAL PRIMARY KEY,
		value       DOUBLE PRECISION NOT NULL,
		"timestamp" TIMESTAMPTZ NOT NULL,
		sensor_id   BIGINT NOT NULL REFERENCES sensors(id) ON DELETE CASCADE
	);`,

	`CREATE INDEX IF NOT EXISTS idx_devices_name ON devices (name);
	CREATE INDEX IF NOT EXISTS idx_temperatures_device_ts_desc ON temperatures (device_id, "timestamp" DESC);
	CREATE INDEX IF NOT EXISTS idx_temperatures_ts_desc ON temperatures ("timestamp" DESC);
	CREATE INDEX IF NOT EXISTS idx_sensor_readings_sensor_ts_desc ON sensor_readings (sensor_id, "timestamp" DESC);`,
}
