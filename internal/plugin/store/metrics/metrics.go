package metrics

import (
	"context"
	"time"

	"github.com/omnibot/context-service/internal/model"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
	"github.com/omnibot/context-service/internal/security"
)

// Wrap returns an EntryStore that records StoreLatency for every operation.
func Wrap(inner registrystore.EntryStore) registrystore.EntryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner registrystore.EntryStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) QueryByIdentity(ctx context.Context, identity string) ([]model.Entry, error) {
	defer observe("query_by_identity", time.Now())
	return m.inner.QueryByIdentity(ctx, identity)
}

func (m *metricsStore) QueryByIdentityAndDomain(ctx context.Context, identity, domain string) ([]model.Entry, error) {
	defer observe("query_by_identity_and_domain", time.Now())
	return m.inner.QueryByIdentityAndDomain(ctx, identity, domain)
}

func (m *metricsStore) Put(ctx context.Context, entry model.Entry) error {
	defer observe("put", time.Now())
	return m.inner.Put(ctx, entry)
}

func (m *metricsStore) Delete(ctx context.Context, identity, domain, key string) error {
	defer observe("delete", time.Now())
	return m.inner.Delete(ctx, identity, domain, key)
}

var _ registrystore.EntryStore = (*metricsStore)(nil)
