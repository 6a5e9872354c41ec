// Package memory registers the "memory" entry store: an in-process map used
// by tests and local development. Expiry is honored on read, matching the
// passive TTL semantics of the production backends.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/omnibot/context-service/internal/model"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.EntryStore, error) {
			return New(), nil
		},
	})
}

type entryKey struct {
	domain string
	key    string
}

// Store is an in-memory EntryStore. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[entryKey]model.Entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: map[string]map[entryKey]model.Entry{}}
}

func live(e model.Entry, now int64) bool {
	return e.ExpiresAt == 0 || e.ExpiresAt > now
}

func (s *Store) QueryByIdentity(ctx context.Context, identity string) ([]model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, registrystore.Unavailable("query", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().Unix()
	var result []model.Entry
	for _, e := range s.entries[identity] {
		if live(e, now) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) QueryByIdentityAndDomain(ctx context.Context, identity, domain string) ([]model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, registrystore.Unavailable("query", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().Unix()
	var result []model.Entry
	for k, e := range s.entries[identity] {
		if k.domain == domain && live(e, now) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) Put(ctx context.Context, entry model.Entry) error {
	if err := ctx.Err(); err != nil {
		return registrystore.Unavailable("put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.entries[entry.Identity]
	if byKey == nil {
		byKey = map[entryKey]model.Entry{}
		s.entries[entry.Identity] = byKey
	}
	byKey[entryKey{domain: entry.Domain, key: entry.Key}] = entry
	return nil
}

func (s *Store) Delete(ctx context.Context, identity, domain, key string) error {
	if err := ctx.Err(); err != nil {
		return registrystore.Unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if byKey := s.entries[identity]; byKey != nil {
		delete(byKey, entryKey{domain: domain, key: key})
		if len(byKey) == 0 {
			delete(s.entries, identity)
		}
	}
	return nil
}

var _ registrystore.EntryStore = (*Store)(nil)
