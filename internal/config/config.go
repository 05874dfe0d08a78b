// Package config loads the returns service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/wms-platform/returns-service/pkg/kafka"
	"github.com/wms-platform/returns-service/pkg/mongodb"
	"github.com/wms-platform/returns-service/pkg/resilience"
	"github.com/wms-platform/returns-service/pkg/temporal"
	"github.com/wms-platform/returns-service/pkg/tracing"
)

const ServiceName = "returns-service"

// Config holds application configuration
type Config struct {
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8016"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"returns_db"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	OrderServiceURL string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8001"`

	TemporalEnabled   bool   `env:"TEMPORAL_ENABLED" envDefault:"true"`
	TemporalHost      string `env:"TEMPORAL_HOST" envDefault:"localhost:7233"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE" envDefault:"default"`
	TemporalTaskQueue string `env:"TEMPORAL_TASK_QUEUE" envDefault:"returns-queue"`

	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"true"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	// DefaultPolicyFile seeds tenants that never activated a policy. Empty disables the fallback.
	DefaultPolicyFile   string        `env:"DEFAULT_POLICY_FILE" envDefault:"configs/default-policy.yaml"`
	AuthorizationWindow time.Duration `env:"AUTHORIZATION_WINDOW" envDefault:"720h"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// Load reads a local .env when one exists, then parses the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.OutboxBatchSize <= 0 {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatchSize)
	}
	if cfg.AuthorizationWindow <= 0 {
		return nil, fmt.Errorf("AUTHORIZATION_WINDOW must be positive, got %s", cfg.AuthorizationWindow)
	}
	return cfg, nil
}

// MongoDB builds the database client configuration
func (c *Config) MongoDB() *mongodb.Config {
	m := mongodb.DefaultConfig()
	m.URI = c.MongoURI
	m.Database = c.MongoDatabase
	return m
}

// Kafka builds the producer configuration
func (c *Config) Kafka() *kafka.Config {
	k := kafka.DefaultConfig()
	k.Brokers = c.KafkaBrokers
	k.ClientID = ServiceName
	return k
}

// Temporal builds the workflow client configuration
func (c *Config) Temporal() *temporal.Config {
	return &temporal.Config{
		HostPort:  c.TemporalHost,
		Namespace: c.TemporalNamespace,
		Identity:  ServiceName,
	}
}

// Tracing builds the tracer provider configuration
func (c *Config) Tracing() *tracing.Config {
	t := tracing.DefaultConfig(ServiceName)
	t.OTLPEndpoint = c.OTLPEndpoint
	t.Environment = c.Environment
	t.Enabled = c.TracingEnabled
	return t
}

// OrderServiceBreaker builds the circuit breaker settings for order lookups
func (c *Config) OrderServiceBreaker() *resilience.CircuitBreakerConfig {
	return resilience.DefaultCircuitBreakerConfig("order-service")
}
