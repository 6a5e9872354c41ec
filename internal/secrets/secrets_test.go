package secrets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/omnibot/context-service/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	calls    int
	payload  string
	binary   []byte
	failWith error
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := &secretsmanager.GetSecretValueOutput{}
	if f.payload != "" {
		out.SecretString = aws.String(f.payload)
	} else {
		out.SecretBinary = f.binary
	}
	return out, nil
}

func TestGetSecret(t *testing.T) {
	api := &fakeSecretsAPI{payload: `{"bot-a":"key-1","bot-b":"key-2"}`}
	provider, err := secrets.NewManagerWithClient(api, time.Minute)
	require.NoError(t, err)

	secret, err := provider.GetSecret(context.Background(), "api-keys")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bot-a": "key-1", "bot-b": "key-2"}, secret)
}

func TestGetSecretCachesLookups(t *testing.T) {
	api := &fakeSecretsAPI{payload: `{"bot-a":"key-1"}`}
	provider, err := secrets.NewManagerWithClient(api, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = provider.GetSecret(ctx, "api-keys")
	require.NoError(t, err)
	_, err = provider.GetSecret(ctx, "api-keys")
	require.NoError(t, err)

	assert.Equal(t, 1, api.calls)
}

func TestGetSecretBinaryPayload(t *testing.T) {
	api := &fakeSecretsAPI{binary: []byte(`{"bot-a":"key-1"}`)}
	provider, err := secrets.NewManagerWithClient(api, time.Minute)
	require.NoError(t, err)

	secret, err := provider.GetSecret(context.Background(), "api-keys")
	require.NoError(t, err)
	assert.Equal(t, "key-1", secret["bot-a"])
}

func TestGetSecretErrors(t *testing.T) {
	api := &fakeSecretsAPI{failWith: errors.New("denied")}
	provider, err := secrets.NewManagerWithClient(api, time.Minute)
	require.NoError(t, err)

	_, err = provider.GetSecret(context.Background(), "api-keys")
	assert.Error(t, err)
}

func TestGetSecretNonObjectPayload(t *testing.T) {
	api := &fakeSecretsAPI{payload: `"just a string"`}
	provider, err := secrets.NewManagerWithClient(api, time.Minute)
	require.NoError(t, err)

	_, err = provider.GetSecret(context.Background(), "api-keys")
	assert.Error(t, err)
}
