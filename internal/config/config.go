package config

import (
	"context"
	"time"

	"github.com/omnibot/context-service/internal/model"
)

// ListenerConfig holds the network/TLS settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the context service.
type Config struct {
	// Store backend type: "dynamo", "redis", or "memory".
	StoreType string

	// DynamoDB
	DynamoTable    string
	DynamoEndpoint string // override for local development; empty uses AWS
	AWSRegion      string

	// Redis
	RedisURL string

	// Context policy
	HistoryLimit int
	ContextTTL   time.Duration

	// Per-call bound on entry store operations. A timed-out call is treated
	// as a storage failure and degrades like one.
	StoreTimeout time.Duration

	// Provision the store schema on startup.
	MigrateAtStart bool

	// Server
	Listener    ListenerConfig
	CORSEnabled bool
	CORSOrigins string

	// Security
	// APIKeys maps API key values to client IDs. Empty disables API-key auth.
	APIKeys map[string]string
	// APIKeysSecret names a secret holding the API key map; resolved through
	// the secrets provider at startup and merged over APIKeys.
	APIKeysSecret   string
	SecretsCacheTTL time.Duration

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR}
	// expansion. Defaults to "service=context-service".
	MetricsLabels string

	// Access log for management endpoints (/health, /ready, /metrics).
	// Disabled by default to suppress probe noise.
	ManagementAccessLog bool

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreType:       "dynamo",
		DynamoTable:     "context-entries",
		AWSRegion:       "us-east-1",
		HistoryLimit:    model.HistoryLimit,
		ContextTTL:      model.DefaultTTL,
		StoreTimeout:    5 * time.Second,
		MigrateAtStart:  true,
		SecretsCacheTTL: 5 * time.Minute,
		MetricsLabels:   "service=context-service",
		DrainTimeout:    30,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}
