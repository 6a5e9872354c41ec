package model

import (
	"encoding/json"
	"time"
)

// DomainGlobal is the domain holding cross-cutting context fields. Every
// other domain name is an application vertical (e.g. "retail").
const DomainGlobal = "global"

// Keys of the global-domain fields that are folded into dedicated Context
// fields rather than the Domains map.
const (
	KeyLastIntent    = "last_intent"
	KeyLastDomain    = "last_domain"
	KeyLastConnector = "last_connector"
	KeyLastResponse  = "last_response"
	KeyHistory       = "history"
	KeyPreferences   = "preferences"
)

const (
	// HistoryLimit caps the number of retained history records. Enforced on
	// write; the oldest records are evicted first.
	HistoryLimit = 100

	// DefaultTTL is how long entries live before the storage engine expires
	// them.
	DefaultTTL = 30 * 24 * time.Hour
)

// Entry is the atomic unit of storage: one (identity, domain, key) record.
// Value carries the already-encoded storage string; the entry store never
// interprets it. Timestamp is the write time and ExpiresAt the absolute
// expiry, both in epoch seconds.
type Entry struct {
	Identity  string `json:"identity"`
	Domain    string `json:"domain"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expires_at"`
}

// HistoryRecord is one message/response exchange in an identity's history.
type HistoryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
}

// Context is the aggregated view of all of one identity's entries. It is
// derived per call, never stored directly.
type Context struct {
	Identity      string                      `json:"identity"`
	LastIntent    Value                       `json:"last_intent"`
	LastDomain    Value                       `json:"last_domain"`
	LastConnector Value                       `json:"last_connector"`
	LastResponse  Value                       `json:"last_response"`
	History       []HistoryRecord             `json:"history"`
	Preferences   map[string]Value            `json:"preferences"`
	Domains       map[string]map[string]Value `json:"domains"`
}

// EmptyContext returns the default context for an identity with no stored
// entries: null scalars, empty history, preferences and domains.
func EmptyContext(identity string) Context {
	return Context{
		Identity:    identity,
		History:     []HistoryRecord{},
		Preferences: map[string]Value{},
		Domains:     map[string]map[string]Value{},
	}
}

// HistoryFromValue decodes a stored history value into records. Anything
// that is not a list of well-formed records decodes to an empty history.
func HistoryFromValue(v Value) ([]HistoryRecord, bool) {
	if _, ok := v.List(); !ok {
		return []HistoryRecord{}, false
	}
	raw, err := json.Marshal(v.Any())
	if err != nil {
		return []HistoryRecord{}, false
	}
	var records []HistoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return []HistoryRecord{}, false
	}
	if records == nil {
		records = []HistoryRecord{}
	}
	return records, true
}

// PreferencesFromValue decodes a stored preferences value into a flat key to
// value map. Non-map values decode to an empty map.
func PreferencesFromValue(v Value) (map[string]Value, bool) {
	entries, ok := v.Map()
	if !ok {
		return map[string]Value{}, false
	}
	prefs := make(map[string]Value, len(entries))
	for k, raw := range entries {
		prefs[k] = FromAny(raw)
	}
	return prefs, true
}
