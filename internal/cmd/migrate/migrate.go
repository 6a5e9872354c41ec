package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/omnibot/context-service/internal/config"
	registrymigrate "github.com/omnibot/context-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	_ "github.com/omnibot/context-service/internal/plugin/store/dynamo"
)

// Command returns the migrate sub-command. It provisions the store schema
// and exits, for deployments that run migrations separately from serving.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Provision the entry store schema and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "store-kind",
				Sources:     cli.EnvVars("CONTEXT_SERVICE_STORE_KIND"),
				Destination: &cfg.StoreType,
				Value:       cfg.StoreType,
				Usage:       "Entry store backend (dynamo|redis|memory)",
			},
			&cli.StringFlag{
				Name:        "dynamo-table",
				Sources:     cli.EnvVars("CONTEXT_SERVICE_DYNAMO_TABLE"),
				Destination: &cfg.DynamoTable,
				Value:       cfg.DynamoTable,
				Usage:       "DynamoDB table holding context entries",
			},
			&cli.StringFlag{
				Name:        "dynamo-endpoint",
				Sources:     cli.EnvVars("CONTEXT_SERVICE_DYNAMO_ENDPOINT"),
				Destination: &cfg.DynamoEndpoint,
				Usage:       "DynamoDB endpoint override for local development",
			},
			&cli.StringFlag{
				Name:        "aws-region",
				Sources:     cli.EnvVars("CONTEXT_SERVICE_AWS_REGION", "AWS_REGION"),
				Destination: &cfg.AWSRegion,
				Value:       cfg.AWSRegion,
				Usage:       "AWS region for DynamoDB",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = config.WithContext(ctx, &cfg)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("Migration complete")
			return nil
		},
	}
}
