package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/omnibot/context-service/internal/model"
	"github.com/omnibot/context-service/internal/plugin/store/redis"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These are integration tests against a live Redis. Set
// CONTEXT_SERVICE_TEST_REDIS_URL (e.g. redis://localhost:6379/15) to run
// them; use a dedicated database, entries are written and deleted.
func setupTestStore(t *testing.T) registrystore.EntryStore {
	t.Helper()

	redisURL := os.Getenv("CONTEXT_SERVICE_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("CONTEXT_SERVICE_TEST_REDIS_URL not set")
	}

	store, err := redis.LoadFromURL(context.Background(), redisURL)
	require.NoError(t, err)
	return store
}

func entry(identity, domain, key, value string) model.Entry {
	return model.Entry{
		Identity:  identity,
		Domain:    domain,
		Key:       key,
		Value:     value,
		Timestamp: time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
}

func cleanup(t *testing.T, store registrystore.EntryStore, identity string) {
	t.Helper()
	ctx := context.Background()
	entries, err := store.QueryByIdentity(ctx, identity)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, store.Delete(ctx, identity, e.Domain, e.Key))
	}
}

func TestPutQueryDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	identity := "redis-test-a@x.com"
	t.Cleanup(func() { cleanup(t, store, identity) })

	require.NoError(t, store.Put(ctx, entry(identity, "global", "last_intent", "greet")))
	require.NoError(t, store.Put(ctx, entry(identity, "retail", "cart", "3")))

	entries, err := store.QueryByIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.QueryByIdentityAndDomain(ctx, identity, "retail")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cart", entries[0].Key)
	assert.Equal(t, "3", entries[0].Value)

	require.NoError(t, store.Delete(ctx, identity, "retail", "cart"))
	entries, err = store.QueryByIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutOverwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	identity := "redis-test-b@x.com"
	t.Cleanup(func() { cleanup(t, store, identity) })

	require.NoError(t, store.Put(ctx, entry(identity, "global", "last_intent", "greet")))
	require.NoError(t, store.Put(ctx, entry(identity, "global", "last_intent", "bye")))

	entries, err := store.QueryByIdentity(ctx, identity)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bye", entries[0].Value)
}
