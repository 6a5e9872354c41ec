// Package store defines the EntryStore interface and its plugin registry.
// EntryStore is the thin, typed accessor over the partitioned key-value
// backend; it translates reads and writes to the storage protocol and back
// and carries no business logic. Aggregation, history and preference policy
// live in the service layer on top.
package store

import (
	"context"
	"fmt"

	"github.com/omnibot/context-service/internal/model"
)

// EntryStore is the data access interface for context entries.
//
// Query results are unordered with respect to domain and key, and ordering
// need not be stable across calls. All methods surface backend failures as
// *StorageUnavailableError; none of them retry, batch, or cache.
type EntryStore interface {
	// QueryByIdentity returns all live entries for the identity. An identity
	// with no entries yields an empty slice, not an error.
	QueryByIdentity(ctx context.Context, identity string) ([]model.Entry, error)

	// QueryByIdentityAndDomain returns the identity's live entries filtered
	// server-side to one domain.
	QueryByIdentityAndDomain(ctx context.Context, identity, domain string) ([]model.Entry, error)

	// Put idempotently upserts one entry; a write to an existing
	// (identity, domain, key) overwrites the prior value, timestamp and
	// expiry. Callers validate required fields before calling.
	Put(ctx context.Context, entry model.Entry) error

	// Delete removes the single entry at (identity, domain, key). Deleting
	// an absent entry is a no-op, not an error.
	Delete(ctx context.Context, identity, domain, key string) error
}

// Loader creates an EntryStore from config carried on the context.
type Loader func(ctx context.Context) (EntryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
