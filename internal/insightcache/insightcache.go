// Package insightcache stores the latest insight per CRM record so read
// surfaces can serve it without recomputation. Entries are keyed strictly by
// record type and id and expire with the configured retention.
package insightcache

import (
	"context"
	"encoding/json"
	"time"

	"crm-insights/internal/common/cache"
	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
	"crm-insights/internal/insight"
)

// lookupTypes are probed, in order, when only a record id is known.
var lookupTypes = []string{"contacts", "deals", "companies"}

// Entry is a cached insight with its provenance.
type Entry struct {
	RecordType string          `json:"record_type"`
	RecordID   string          `json:"record_id"`
	Insight    insight.Insight `json:"insight"`
	StoredAt   time.Time       `json:"stored_at"`
}

// Cache holds insights in a TTL-bounded store.
type Cache struct {
	store  cache.Store
	ttl    time.Duration
	logger logging.Logger
}

// New creates an insight cache with the given retention.
func New(store cache.Store, ttl time.Duration, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

func key(recordType, recordID string) string {
	return "insight:" + recordType + ":" + recordID
}

// Put stores the insight for a record, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, recordType, recordID string, ins *insight.Insight) error {
	if recordType == "" || recordID == "" {
		return errors.ValidationError("record type and id are required")
	}

	entry := Entry{
		RecordType: recordType,
		RecordID:   recordID,
		Insight:    *ins,
		StoredAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return errors.InternalError("failed to encode insight entry", err)
	}
	return c.store.Set(ctx, key(recordType, recordID), encoded, c.ttl)
}

// Get returns the cached insight for a record, or false when none is stored.
func (c *Cache) Get(ctx context.Context, recordType, recordID string) (*Entry, bool) {
	raw, found := c.store.Get(ctx, key(recordType, recordID))
	if !found {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("Discarding undecodable insight entry",
			logging.Field{Key: "record_type", Value: recordType},
			logging.Field{Key: "record_id", Value: recordID},
		)
		_ = c.store.Delete(ctx, key(recordType, recordID))
		return nil, false
	}
	return &entry, true
}

// Lookup probes the known record types for an id. It serves read surfaces
// that receive only an object id, and returns the first hit in probe order.
func (c *Cache) Lookup(ctx context.Context, recordID string) (*Entry, bool) {
	for _, recordType := range lookupTypes {
		if entry, found := c.Get(ctx, recordType, recordID); found {
			return entry, true
		}
	}
	return nil, false
}
