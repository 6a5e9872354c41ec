// Package service implements the context read/aggregate/merge/write policy
// on top of raw entries. All public operations are best-effort: read paths
// degrade to the empty default and write paths log and swallow failures, so
// a storage blip costs the caller its memory of the user, never the request.
package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/omnibot/context-service/internal/model"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
	"github.com/omnibot/context-service/internal/security"
)

// Options tune a ContextService. Zero values fall back to defaults.
type Options struct {
	// HistoryLimit caps retained history records; default model.HistoryLimit.
	HistoryLimit int
	// TTL is the entry lifetime; default model.DefaultTTL.
	TTL time.Duration
	// StoreTimeout bounds each entry store call; default 5s.
	StoreTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// ContextService aggregates entries into contexts and applies the history
// and preference policies. It holds no state of its own; every call
// reconstructs its view from the entry store.
type ContextService struct {
	store        registrystore.EntryStore
	log          *log.Logger
	historyLimit int
	ttl          time.Duration
	timeout      time.Duration
	now          func() time.Time
}

// New creates a ContextService over the given entry store. A nil logger
// falls back to the default logger.
func New(store registrystore.EntryStore, logger *log.Logger, opts Options) *ContextService {
	if logger == nil {
		logger = log.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = model.HistoryLimit
	}
	if opts.TTL <= 0 {
		opts.TTL = model.DefaultTTL
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ContextService{
		store:        store,
		log:          logger,
		historyLimit: opts.HistoryLimit,
		ttl:          opts.TTL,
		timeout:      opts.StoreTimeout,
		now:          opts.Now,
	}
}

func (s *ContextService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// GetContext returns the aggregated context for an identity. Storage
// failures are logged and degrade to the empty default; this method never
// fails.
func (s *ContextService) GetContext(ctx context.Context, identity string) model.Context {
	qctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entries, err := s.store.QueryByIdentity(qctx, identity)
	if err != nil {
		s.log.Error("context read failed, returning empty context", "identity", identity, "err", err)
		return model.EmptyContext(identity)
	}
	return s.fold(identity, entries)
}

// fold builds a Context from a flat entry scan. Global entries route to the
// matching scalar/history/preferences field by key; entries under any other
// domain land in the Domains map. Unrecognized global keys and entries with
// an empty domain are dropped so unknown writers never break aggregation.
func (s *ContextService) fold(identity string, entries []model.Entry) model.Context {
	cctx := model.EmptyContext(identity)
	for _, e := range entries {
		if e.Domain != model.DomainGlobal {
			if e.Domain == "" {
				continue
			}
			byKey := cctx.Domains[e.Domain]
			if byKey == nil {
				byKey = map[string]model.Value{}
				cctx.Domains[e.Domain] = byKey
			}
			byKey[e.Key] = model.DecodeStored(e.Value)
			continue
		}
		switch e.Key {
		case model.KeyLastIntent:
			cctx.LastIntent = model.DecodeStored(e.Value)
		case model.KeyLastDomain:
			cctx.LastDomain = model.DecodeStored(e.Value)
		case model.KeyLastConnector:
			cctx.LastConnector = model.DecodeStored(e.Value)
		case model.KeyLastResponse:
			cctx.LastResponse = model.DecodeStored(e.Value)
		case model.KeyHistory:
			records, ok := model.HistoryFromValue(model.DecodeStored(e.Value))
			if !ok {
				s.log.Debug("stored history not decodable, using empty history", "identity", identity)
				security.ObserveDecodeFallback()
			}
			cctx.History = records
		case model.KeyPreferences:
			prefs, ok := model.PreferencesFromValue(model.DecodeStored(e.Value))
			if !ok {
				s.log.Debug("stored preferences not decodable, using empty preferences", "identity", identity)
				security.ObserveDecodeFallback()
			}
			cctx.Preferences = prefs
		}
	}
	return cctx
}

// UpdateContext writes each update as an independent entry under the given
// domain ("" means global) with a fresh timestamp and expiry. There is no
// multi-key transaction: a failed key is logged and skipped while sibling
// keys stay written. Callers get no error signal.
func (s *ContextService) UpdateContext(ctx context.Context, identity string, updates map[string]model.Value, domain string) {
	if domain == "" {
		domain = model.DomainGlobal
	}
	now := s.now()
	for key, value := range updates {
		entry := model.Entry{
			Identity:  identity,
			Domain:    domain,
			Key:       key,
			Value:     value.Encode(),
			Timestamp: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		}
		pctx, cancel := s.storeCtx(ctx)
		err := s.store.Put(pctx, entry)
		cancel()
		if err != nil {
			s.log.Error("context write failed",
				"identity", identity,
				"domain", domain,
				"key", key,
				"err", err,
			)
			security.ObserveWriteFailure("update_context")
		}
	}
}

// GetDomainContext returns a flat key to value view of one domain's entries,
// with no scalar or history routing. Any failure degrades to an empty map.
func (s *ContextService) GetDomainContext(ctx context.Context, identity, domain string) map[string]model.Value {
	qctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entries, err := s.store.QueryByIdentityAndDomain(qctx, identity, domain)
	if err != nil {
		s.log.Error("domain context read failed, returning empty map",
			"identity", identity, "domain", domain, "err", err)
		return map[string]model.Value{}
	}
	result := make(map[string]model.Value, len(entries))
	for _, e := range entries {
		result[e.Key] = model.DecodeStored(e.Value)
	}
	return result
}

// AddToHistory appends a message/response exchange to the identity's
// history, evicting the oldest records past the cap, and writes the whole
// history back. The read-modify-write is not serialized against concurrent
// callers for the same identity; the last writer wins on the whole blob.
func (s *ContextService) AddToHistory(ctx context.Context, identity, message, response, domain string) {
	history := s.GetContext(ctx, identity).History
	history = append(history, model.HistoryRecord{
		Timestamp: s.now(),
		Domain:    domain,
		Message:   message,
		Response:  response,
	})
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}
	s.UpdateContext(ctx, identity, map[string]model.Value{
		model.KeyHistory: model.JSONValue(history),
	}, model.DomainGlobal)
}

// SetPreference merges one preference key into the identity's preference
// map and writes the whole map back. Same read-modify-write caveat as
// AddToHistory.
func (s *ContextService) SetPreference(ctx context.Context, identity, key string, value model.Value) {
	prefs := s.GetContext(ctx, identity).Preferences
	prefs[key] = value
	s.UpdateContext(ctx, identity, map[string]model.Value{
		model.KeyPreferences: model.JSONValue(prefs),
	}, model.DomainGlobal)
}

// GetPreference returns the identity's preference for key, or def when the
// key, the map, or the read itself is absent or failed.
func (s *ContextService) GetPreference(ctx context.Context, identity, key string, def model.Value) model.Value {
	prefs := s.GetContext(ctx, identity).Preferences
	if v, ok := prefs[key]; ok {
		return v
	}
	return def
}

// ClearContext deletes every entry for the identity, one delete per entry so
// sibling keys under the same domain are never orphaned. Failures are logged
// and skipped; the identity may end up partially cleared.
func (s *ContextService) ClearContext(ctx context.Context, identity string) {
	qctx, cancel := s.storeCtx(ctx)
	entries, err := s.store.QueryByIdentity(qctx, identity)
	cancel()
	if err != nil {
		s.log.Error("context clear failed listing entries", "identity", identity, "err", err)
		return
	}
	for _, e := range entries {
		dctx, cancel := s.storeCtx(ctx)
		err := s.store.Delete(dctx, identity, e.Domain, e.Key)
		cancel()
		if err != nil {
			s.log.Error("context clear failed deleting entry",
				"identity", identity,
				"domain", e.Domain,
				"key", e.Key,
				"err", err,
			)
			security.ObserveWriteFailure("clear_context")
		}
	}
}
