// Package redis registers the "redis" entry store. Each entry lives under
// its own key with an absolute expiry, and a per-identity set indexes the
// entry keys so queries avoid keyspace scans. Index members whose entry
// already expired are skipped on read.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/omnibot/context-service/internal/config"
	"github.com/omnibot/context-service/internal/model"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrystore.EntryStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis store: CONTEXT_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL)
}

// LoadFromURL creates an EntryStore from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrystore.EntryStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis store: ping failed: %w", err)
	}
	return &entryStore{client: client}, nil
}

type entryStore struct {
	client *goredis.Client
}

func entryKey(identity, domain, key string) string {
	return fmt.Sprintf("ctx:entry:%s:%s:%s", identity, domain, key)
}

func indexKey(identity string) string {
	return fmt.Sprintf("ctx:index:%s", identity)
}

func (s *entryStore) QueryByIdentity(ctx context.Context, identity string) ([]model.Entry, error) {
	return s.queryFiltered(ctx, identity, func(model.Entry) bool { return true })
}

func (s *entryStore) QueryByIdentityAndDomain(ctx context.Context, identity, domain string) ([]model.Entry, error) {
	return s.queryFiltered(ctx, identity, func(e model.Entry) bool { return e.Domain == domain })
}

func (s *entryStore) queryFiltered(ctx context.Context, identity string, keep func(model.Entry) bool) ([]model.Entry, error) {
	keys, err := s.client.SMembers(ctx, indexKey(identity)).Result()
	if err != nil {
		return nil, registrystore.Unavailable("query", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, registrystore.Unavailable("query", err)
	}

	var entries []model.Entry
	for _, raw := range values {
		data, ok := raw.(string)
		if !ok {
			// expired entry still referenced by the index
			continue
		}
		var e model.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			continue
		}
		if keep(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *entryStore) Put(ctx context.Context, entry model.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return registrystore.Unavailable("put", err)
	}
	key := entryKey(entry.Identity, entry.Domain, entry.Key)

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, indexKey(entry.Identity), key)
		if entry.ExpiresAt > 0 {
			expiry := time.Unix(entry.ExpiresAt, 0)
			pipe.ExpireAt(ctx, key, expiry)
			pipe.ExpireAt(ctx, indexKey(entry.Identity), expiry)
		}
		return nil
	})
	if err != nil {
		return registrystore.Unavailable("put", err)
	}
	return nil
}

func (s *entryStore) Delete(ctx context.Context, identity, domain, key string) error {
	k := entryKey(identity, domain, key)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.SRem(ctx, indexKey(identity), k)
		return nil
	})
	if err != nil {
		return registrystore.Unavailable("delete", err)
	}
	return nil
}

var _ registrystore.EntryStore = (*entryStore)(nil)
