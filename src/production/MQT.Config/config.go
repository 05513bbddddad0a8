package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-this-secret-in-production"

// Payload formats accepted by the ingestor
const (
	PayloadFormatTopic    = "topic"
	PayloadFormatDocument = "document"
)

// Reconnect backoff strategies
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Database drivers
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Ingest   IngestConfig   `json:"ingest"`
	Auth     AuthConfig     `json:"auth"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
	Mongo    MongoConfig    `json:"mongo"`
	Redis    RedisConfig    `json:"redis"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port              string        `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	InternalAPISecret string        `json:"-"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"-"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConns       int           `json:"max_conns"`
	MinConns       int           `json:"min_conns"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// MQTTConfig holds broker connection and subscription settings
type MQTTConfig struct {
	BrokerHost        string        `json:"broker_host"`
	BrokerPort        int           `json:"broker_port"`
	BrokerUser        string        `json:"broker_user"`
	BrokerPass        string        `json:"-"`
	UseTLS            bool          `json:"use_tls"`
	UseWebsocket      bool          `json:"use_websocket"`
	CACertPath        string        `json:"ca_cert_path"`
	Topic             string        `json:"topic"`
	QoS               int           `json:"qos"`
	ClientID          string        `json:"client_id"`
	SharedGroup       string        `json:"shared_group"`
	KeepAlive         time.Duration `json:"keep_alive"`
	PingTimeout       time.Duration `json:"ping_timeout"`
	ConnectTimeout    time.Duration `json:"connect_timeout"`
	ReconnectMin      time.Duration `json:"reconnect_min"`
	ReconnectMax      time.Duration `json:"reconnect_max"`
	ReconnectStrategy string        `json:"reconnect_strategy"`
	QueueSize         int           `json:"queue_size"`
	PublishErrors     bool          `json:"publish_errors"`
	ErrorTopicPrefix  string        `json:"error_topic_prefix"`
}

// IngestConfig holds message handling settings
type IngestConfig struct {
	PayloadFormat string        `json:"payload_format"` // topic or document
	TopicPrefix   string        `json:"topic_prefix"`
	StoreTimeout  time.Duration `json:"store_timeout"`
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecretKey         string        `json:"-"`
	JWTIssuer            string        `json:"jwt_issuer"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	PasswordMinLength    int           `json:"password_min_length"`
	Admin                AdminConfig   `json:"admin"`
}

// AdminConfig holds admin user configuration
type AdminConfig struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// MongoConfig configures the optional rejected-message archive. Empty URI disables it.
type MongoConfig struct {
	URI        string        `json:"-"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// RedisConfig configures the optional token revocation store. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// Load reads configuration from the environment (and .env when present) and validates it.
func Load() (*Config, error) {
	// .env is optional, the process environment wins
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:              l.getEnv("PORT", "8000"),
			ReadTimeout:       l.getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      l.getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       l.getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   l.getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			InternalAPISecret: l.getEnv("INTERNAL_API_SECRET", ""),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(l.getEnv("DATABASE_DRIVER", DriverPQ)),
			Host:           l.getEnv("POSTGRES_HOST", "localhost"),
			Port:           l.getInt("POSTGRES_PORT", 5432),
			User:           l.getEnv("POSTGRES_USER", ""),
			Password:       l.getEnv("POSTGRES_PASSWORD", ""),
			DBName:         l.getEnv("POSTGRES_DB", "postgres"),
			SSLMode:        l.getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:       l.getInt("POSTGRES_MAX_CONNS", 25),
			MinConns:       l.getInt("POSTGRES_MIN_CONNS", 5),
			ConnectTimeout: l.getDuration("POSTGRES_CONNECT_TIMEOUT", 20*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerHost:        l.getEnv("BROKER_HOST", ""),
			BrokerPort:        l.getInt("BROKER_PORT", 1883),
			BrokerUser:        l.getEnv("BROKER_USER", ""),
			BrokerPass:        l.getEnv("BROKER_PASS", ""),
			UseTLS:            l.getBool("BROKER_TLS", false),
			UseWebsocket:      l.getBool("BROKER_WEBSOCKET", false),
			CACertPath:        l.getEnv("BROKER_CA_FILE", ""),
			Topic:             l.getEnv("MQTT_TOPIC", "device/#"),
			QoS:               l.getInt("MQTT_QOS", 1),
			ClientID:          l.getEnv("MQTT_CLIENT_ID", "temperature-ingestor"),
			SharedGroup:       l.getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:         l.getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout:       l.getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
			ConnectTimeout:    l.getDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
			ReconnectMin:      l.getDuration("MQTT_RECONNECT_MIN", 5*time.Second),
			ReconnectMax:      l.getDuration("MQTT_RECONNECT_MAX", 60*time.Second),
			ReconnectStrategy: strings.ToLower(l.getEnv("MQTT_RECONNECT_STRATEGY", BackoffExponential)),
			QueueSize:         l.getInt("MQTT_QUEUE_SIZE", 4096),
			PublishErrors:     l.getBool("MQTT_PUBLISH_ERRORS", false),
			ErrorTopicPrefix:  l.getEnv("MQTT_ERROR_TOPIC_PREFIX", "ingestor/errors"),
		},
		Ingest: IngestConfig{
			PayloadFormat: strings.ToLower(l.getEnv("INGEST_PAYLOAD_FORMAT", PayloadFormatTopic)),
			TopicPrefix:   l.getEnv("INGEST_TOPIC_PREFIX", "device"),
			StoreTimeout:  l.getDuration("INGEST_STORE_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecretKey:         l.getEnv("JWT_SECRET_KEY", ""),
			JWTIssuer:            l.getEnv("JWT_ISSUER", "mpt-temperature-server"),
			AccessTokenDuration:  l.getDuration("JWT_ACCESS_TOKEN_DURATION", 300*time.Minute),
			RefreshTokenDuration: l.getDuration("JWT_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			PasswordMinLength:    l.getInt("PASSWORD_MIN_LENGTH", 8),
			Admin: AdminConfig{
				Username: l.getEnv("ADMIN_USERNAME", ""),
				Email:    l.getEnv("ADMIN_EMAIL", ""),
				Password: l.getEnv("ADMIN_PASSWORD", ""),
			},
		},
		Logging: LoggingConfig{
			Level:        l.getEnv("LOG_LEVEL", "info"),
			Format:       l.getEnv("LOG_FORMAT", "text"),
			Output:       l.getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: l.getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   l.getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   l.getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   l.getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization"}),
			ExposedHeaders:   l.getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length"}),
			AllowCredentials: l.getBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           l.getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
		Mongo: MongoConfig{
			URI:        l.getEnv("MONGODB_URI", ""),
			Database:   l.getEnv("MONGODB_DB", "iot"),
			Collection: l.getEnv("MONGODB_REJECTIONS_COLLECTION", "rejected_messages"),
			Timeout:    l.getDuration("MONGODB_TIMEOUT", 20*time.Second),
		},
		Redis: RedisConfig{
			Addr:     l.getEnv("REDIS_ADDR", ""),
			Password: l.getEnv("REDIS_PASSWORD", ""),
			DB:       l.getInt("REDIS_DB", 0),
		},
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("configuration parsing failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required values and enumerations. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"POSTGRES_USER":     c.Database.User,
		"POSTGRES_PASSWORD": c.Database.Password,
		"BROKER_HOST":       c.MQTT.BrokerHost,
		"JWT_SECRET_KEY":    c.Auth.JWTSecretKey,
	}
	for _, key := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "BROKER_HOST", "JWT_SECRET_KEY"} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if c.Auth.JWTSecretKey == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET_KEY must not use the placeholder value"))
	}
	if c.Auth.PasswordMinLength < 6 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be at least 6"))
	}

	switch c.Database.Driver {
	case DriverPQ, DriverPGX:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not one of %s|%s", c.Database.Driver, DriverPQ, DriverPGX))
	}

	switch c.MQTT.ReconnectStrategy {
	case BackoffFixed, BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("MQTT_RECONNECT_STRATEGY %q is not one of %s|%s", c.MQTT.ReconnectStrategy, BackoffFixed, BackoffExponential))
	}
	if c.MQTT.ReconnectMin <= 0 {
		errs = append(errs, errors.New("MQTT_RECONNECT_MIN must be positive"))
	}
	if c.MQTT.ReconnectMax < c.MQTT.ReconnectMin {
		errs = append(errs, errors.New("MQTT_RECONNECT_MAX must not be lower than MQTT_RECONNECT_MIN"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT_QOS %d is out of range 0..2", c.MQTT.QoS))
	}
	if c.MQTT.QueueSize <= 0 {
		errs = append(errs, errors.New("MQTT_QUEUE_SIZE must be positive"))
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, errors.New("MQTT_TOPIC must not be empty"))
	}
	if c.MQTT.PublishErrors {
		prefix := strings.Trim(c.MQTT.ErrorTopicPrefix, "/")
		switch {
		case prefix == "":
			errs = append(errs, errors.New("MQTT_ERROR_TOPIC_PREFIX must not be empty when MQTT_PUBLISH_ERRORS is set"))
		case strings.ContainsAny(prefix, "+#"):
			errs = append(errs, fmt.Errorf("MQTT_ERROR_TOPIC_PREFIX %q must not contain wildcards", c.MQTT.ErrorTopicPrefix))
		case c.MQTT.Topic != "" && FilterReachesPrefix(c.MQTT.Topic, prefix):
			// the ingestor would consume its own error reports
			errs = append(errs, fmt.Errorf("MQTT_TOPIC %q overlaps MQTT_ERROR_TOPIC_PREFIX %q", c.MQTT.Topic, c.MQTT.ErrorTopicPrefix))
		}
	}

	switch c.Ingest.PayloadFormat {
	case PayloadFormatTopic, PayloadFormatDocument:
	default:
		errs = append(errs, fmt.Errorf("INGEST_PAYLOAD_FORMAT %q is not one of %s|%s", c.Ingest.PayloadFormat, PayloadFormatTopic, PayloadFormatDocument))
	}
	if c.Ingest.StoreTimeout <= 0 {
		errs = append(errs, errors.New("INGEST_STORE_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	switch {
	case c.MQTT.UseWebsocket && c.MQTT.UseTLS:
		scheme = "wss"
	case c.MQTT.UseWebsocket:
		scheme = "ws"
	case c.MQTT.UseTLS:
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// loader collects parse errors so Load can report all of them at once
type loader struct {
	errs []error
}

func (l *loader) getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return intValue
}

func (l *loader) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %q (expected true/false or 1/0)", key, value))
		return defaultValue
	}
	return boolValue
}

func (l *loader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return duration
}

func (l *loader) getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
