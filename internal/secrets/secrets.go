// Package secrets resolves named secrets for collaborators such as API-key
// auth. Lookups go to AWS Secrets Manager and are cached in-process for a
// short TTL so hot-path callers do not hit the secrets API per request.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/dgraph-io/ristretto/v2"
)

// Provider resolves a named secret to its key/value payload.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// API is the subset of the Secrets Manager API the provider uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewManager creates a Provider over AWS Secrets Manager with an in-process
// TTL cache.
func NewManager(ctx context.Context, region string, cacheTTL time.Duration) (Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("secrets: loading AWS config: %w", err)
	}
	return NewManagerWithClient(secretsmanager.NewFromConfig(awsCfg), cacheTTL)
}

// NewManagerWithClient creates a Provider over the given client. Exposed for
// tests.
func NewManagerWithClient(client API, cacheTTL time.Duration) (Provider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, map[string]string]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cache: %w", err)
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &manager{client: client, cache: cache, ttl: cacheTTL}, nil
}

type manager struct {
	client API
	cache  *ristretto.Cache[string, map[string]string]
	ttl    time.Duration
}

func (m *manager) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	if cached, ok := m.cache.Get(name); ok {
		return cached, nil
	}

	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: fetching %s: %w", name, err)
	}

	payload := []byte{}
	if out.SecretString != nil {
		payload = []byte(*out.SecretString)
	} else if out.SecretBinary != nil {
		payload = out.SecretBinary
	}

	var value map[string]string
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("secrets: %s is not a JSON object of strings: %w", name, err)
	}

	m.cache.SetWithTTL(name, value, 1, m.ttl)
	m.cache.Wait()
	return value, nil
}
