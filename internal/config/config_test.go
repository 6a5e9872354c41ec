package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/omnibot/context-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "dynamo", cfg.StoreType)
	assert.Equal(t, "context-entries", cfg.DynamoTable)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 30*24*time.Hour, cfg.ContextTTL)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.True(t, cfg.MigrateAtStart)
	assert.Equal(t, 8080, cfg.Listener.Port)
	assert.Equal(t, 30, cfg.DrainTimeout)
	assert.Empty(t, cfg.APIKeys)
}

func TestConfigContextRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)

	got := config.FromContext(ctx)
	assert.Same(t, &cfg, got)
}

func TestFromContextMissing(t *testing.T) {
	assert.Nil(t, config.FromContext(context.Background()))
}
