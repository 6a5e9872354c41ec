package serve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/omnibot/context-service/internal/config"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/omnibot/context-service/internal/plugin/route/system"
	_ "github.com/omnibot/context-service/internal/plugin/store/dynamo"
	_ "github.com/omnibot/context-service/internal/plugin/store/memory"
	_ "github.com/omnibot/context-service/internal/plugin/store/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	apiKeys := map[string]string{}
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the context service HTTP server",
		Flags: flags(&cfg, &apiKeys),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// Flag map is clientID=key; config wants key value to clientID.
			cfg.APIKeys = map[string]string{}
			for clientID, key := range apiKeys {
				cfg.APIKeys[key] = clientID
			}
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, apiKeys *map[string]string) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; plaintext HTTP when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_READ_HEADER_TIMEOUT"),
			Destination: &cfg.Listener.ReadHeaderTimeout,
			Value:       cfg.Listener.ReadHeaderTimeout,
			Usage:       "HTTP read header timeout",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_CORS"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins; empty allows any",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for /health, /ready and /metrics",
		},

		// ── Store ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "store-kind",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_STORE_KIND"),
			Destination: &cfg.StoreType,
			Value:       cfg.StoreType,
			Usage:       "Entry store backend (dynamo|redis|memory)",
		},
		&cli.StringFlag{
			Name:        "dynamo-table",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_DYNAMO_TABLE"),
			Destination: &cfg.DynamoTable,
			Value:       cfg.DynamoTable,
			Usage:       "DynamoDB table holding context entries",
		},
		&cli.StringFlag{
			Name:        "dynamo-endpoint",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_DYNAMO_ENDPOINT"),
			Destination: &cfg.DynamoEndpoint,
			Usage:       "DynamoDB endpoint override for local development",
		},
		&cli.StringFlag{
			Name:        "aws-region",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_AWS_REGION", "AWS_REGION"),
			Destination: &cfg.AWSRegion,
			Value:       cfg.AWSRegion,
			Usage:       "AWS region for DynamoDB and Secrets Manager",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL for the redis store",
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Provision the store schema on startup",
		},
		&cli.DurationFlag{
			Name:        "store-timeout",
			Category:    "Store:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_STORE_TIMEOUT"),
			Destination: &cfg.StoreTimeout,
			Value:       cfg.StoreTimeout,
			Usage:       "Per-call bound on entry store operations",
		},

		// ── Context Policy ────────────────────────────────────────
		&cli.IntFlag{
			Name:        "history-limit",
			Category:    "Context Policy:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_HISTORY_LIMIT"),
			Destination: &cfg.HistoryLimit,
			Value:       cfg.HistoryLimit,
			Usage:       "Maximum retained history records per identity",
		},
		&cli.DurationFlag{
			Name:        "context-ttl",
			Category:    "Context Policy:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_CONTEXT_TTL"),
			Destination: &cfg.ContextTTL,
			Value:       cfg.ContextTTL,
			Usage:       "Entry lifetime before passive expiry",
		},

		// ── Security ──────────────────────────────────────────────
		&cli.StringMapFlag{
			Name:        "api-keys",
			Category:    "Security:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_API_KEYS"),
			Destination: apiKeys,
			Usage:       "API keys as clientID=key pairs; empty disables auth",
		},
		&cli.StringFlag{
			Name:        "api-keys-secret",
			Category:    "Security:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_API_KEYS_SECRET"),
			Destination: &cfg.APIKeysSecret,
			Usage:       "Secrets Manager secret holding clientID=key pairs",
		},
		&cli.DurationFlag{
			Name:        "secrets-cache-ttl",
			Category:    "Security:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_SECRETS_CACHE_TTL"),
			Destination: &cfg.SecretsCacheTTL,
			Value:       cfg.SecretsCacheTTL,
			Usage:       "How long resolved secrets are cached in process",
		},

		// ── Observability ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Observability:",
			Sources:     cli.EnvVars("CONTEXT_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Constant key=value labels added to all Prometheus metrics",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
