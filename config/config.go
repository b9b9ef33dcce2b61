package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"clover-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,PUT,PATCH,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" envDefault:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" envDefault:"postgres"`
	DatabasePassword              string        `env:"DB_PASSWORD" envDefault:""`
	DatabaseName                  string        `env:"DB_NAME" envDefault:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" envDefault:"disable"`
	DatabaseURL                   string        `env:"DATABASE_URL" envDefault:""`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DatabaseConnMaxIdleTime       time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" envDefault:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" envDefault:"false"`

	// Client
	ClientLog            []string      `env:"CLIENT_LOG" envDefault:"warn,error"`
	ClientLogEvents      bool          `env:"CLIENT_LOG_EVENTS" envDefault:"false"`
	TransactionMaxWait   time.Duration `env:"TRANSACTION_MAX_WAIT" envDefault:"2s"`
	TransactionTimeout   time.Duration `env:"TRANSACTION_TIMEOUT" envDefault:"5s"`
	TransactionIsolation string        `env:"TRANSACTION_ISOLATION" envDefault:""`
	TenantIsolation      bool          `env:"TENANT_ISOLATION" envDefault:"true"`
	OmitPasswordHash     bool          `env:"OMIT_PASSWORD_HASH" envDefault:"true"`

	// Redis query cache
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka change events
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic        string        `env:"KAFKA_TOPIC" envDefault:"clover.changes"`
	KafkaBatchSize    int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
	KafkaRequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression  string        `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Tracing
	OTLPEnabled  bool          `env:"OTLP_ENABLED" envDefault:"false"`
	OTLPEndpoint string        `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" envDefault:"true"`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" envDefault:"10s"`
	OTLPHeaders  string        `env:"OTLP_HEADERS" envDefault:""`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" envDefault:""`

	// Audit
	AuditEnabled bool `env:"AUDIT_ENABLED" envDefault:"true"`
}

// Load reads the given env files, when present, then parses the environment.
func Load(files ...string) (*Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		return errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is set")
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		return fmt.Errorf("OTLP_PROTOCOL must be grpc or http, got %q", c.OTLPProtocol)
	}
	if _, err := exporters.ParseHeaders(c.OTLPHeaders); err != nil {
		return err
	}
	if c.TransactionMaxWait <= 0 || c.TransactionTimeout <= 0 {
		return errors.New("TRANSACTION_MAX_WAIT and TRANSACTION_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
		ConnMaxIdleTime: c.DatabaseConnMaxIdleTime,
		ApplicationName: c.AppName,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) OTLP() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
		Headers:  c.OTLPHeaders,
		Timeout:  c.OTLPTimeout,
	}
}

// ClientLogDefinitions maps CLIENT_LOG levels onto client log definitions.
func (c *Config) ClientLogDefinitions() []clover.LogDefinition {
	emit := clover.EmitStdout
	if c.ClientLogEvents {
		emit = clover.EmitEvent
	}
	defs := make([]clover.LogDefinition, 0, len(c.ClientLog))
	for _, level := range c.ClientLog {
		defs = append(defs, clover.LogDefinition{Level: clover.LogLevel(level), Emit: emit})
	}
	return defs
}

func (c *Config) TransactionOptions() clover.TransactionOptions {
	return clover.TransactionOptions{
		MaxWait:        c.TransactionMaxWait,
		Timeout:        c.TransactionTimeout,
		IsolationLevel: clover.IsolationLevel(c.TransactionIsolation),
	}
}

// GlobalOmit hides password hashes from every query.
func (c *Config) GlobalOmit() map[string][]string {
	if !c.OmitPasswordHash {
		return nil
	}
	return map[string][]string{"User": {"password_hash"}}
}
