// Package events models inbound webhook notifications and the dedup gate
// that admits each distinct event exactly once within the retention window.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-insights/internal/common/cache"
	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
)

// Subscription types the pipeline reacts to.
const (
	SubscriptionMeetingCreated = "meeting.creation"
	SubscriptionMeetingUpdated = "meeting.propertyChange"
	SubscriptionNoteCreated    = "note.creation"
	SubscriptionNoteUpdated    = "note.propertyChange"
)

// InboundEvent is one notification from a webhook batch. The platform sends
// batches as a JSON array; fields the pipeline does not use are dropped at
// decode time.
type InboundEvent struct {
	EventID          int64  `json:"eventId"`
	PortalID         int64  `json:"portalId"`
	SubscriptionType string `json:"subscriptionType"`
	ObjectID         int64  `json:"objectId"`
	OccurredAt       int64  `json:"occurredAt"`
	PropertyName     string `json:"propertyName,omitempty"`
}

// Validate checks the fields the pipeline depends on. An event that fails
// here is dropped without touching the dedup store.
func (e *InboundEvent) Validate() error {
	if e.PortalID == 0 {
		return errors.ValidationError("event is missing portalId")
	}
	if e.ObjectID == 0 {
		return errors.ValidationError("event is missing objectId")
	}
	if e.SubscriptionType == "" {
		return errors.ValidationError("event is missing subscriptionType")
	}
	return nil
}

// Identity returns the canonical dedup key. The platform's event id is the
// discriminator when present; retried deliveries reuse it, so they collapse
// to one key. Without an event id the occurrence timestamp stands in.
func (e *InboundEvent) Identity() string {
	discriminator := fmt.Sprintf("%d", e.EventID)
	if e.EventID == 0 {
		discriminator = fmt.Sprintf("%d", e.OccurredAt)
	}
	return fmt.Sprintf("%d:%s:%d:%s", e.PortalID, e.SubscriptionType, e.ObjectID, discriminator)
}

// ObjectType maps the subscription type to the CRM object type the event is
// about, or "" for subscriptions the pipeline does not handle.
func (e *InboundEvent) ObjectType() string {
	switch {
	case strings.HasPrefix(e.SubscriptionType, "meeting."):
		return "meetings"
	case strings.HasPrefix(e.SubscriptionType, "note."):
		return "notes"
	}
	return ""
}

// TenantID is the portal id in the form used as a credential key.
func (e *InboundEvent) TenantID() string {
	return fmt.Sprintf("%d", e.PortalID)
}

// ObjectIDString is the object id in the form the platform paths expect.
func (e *InboundEvent) ObjectIDString() string {
	return fmt.Sprintf("%d", e.ObjectID)
}

// Gate admits each event identity once per retention window. Identities are
// recorded in a TTL-bounded store, so memory stays bounded and a replay
// arriving after the window is reprocessed rather than silently dropped.
type Gate struct {
	store  cache.Store
	ttl    time.Duration
	logger logging.Logger
}

// NewGate creates a dedup gate over the given store.
func NewGate(store cache.Store, ttl time.Duration, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Gate{store: store, ttl: ttl, logger: logger}
}

// Admit reports whether the event should be processed. The first call for an
// identity within the window returns true and records it; later calls return
// false. Invalid events are rejected without recording anything. If the
// store fails the event is admitted, trading duplicate work for not losing
// the event.
func (g *Gate) Admit(ctx context.Context, event *InboundEvent) bool {
	if err := event.Validate(); err != nil {
		g.logger.Warn("Dropping malformed event",
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "subscription_type", Value: event.SubscriptionType},
		)
		return false
	}

	added, err := g.store.Add(ctx, dedupKey(event), []byte("1"), g.ttl)
	if err != nil {
		g.logger.Error("Dedup store unavailable, admitting event", err,
			logging.Field{Key: "identity", Value: event.Identity()},
		)
		return true
	}
	if !added {
		g.logger.Debug("Duplicate event suppressed",
			logging.Field{Key: "identity", Value: event.Identity()},
		)
	}
	return added
}

// Release forgets an admitted identity. Called when an admitted event could
// not be handed off, so a redelivery is not silently swallowed for the rest
// of the window.
func (g *Gate) Release(ctx context.Context, event *InboundEvent) {
	if err := g.store.Delete(ctx, dedupKey(event)); err != nil {
		g.logger.Warn("Failed to release dedup claim",
			logging.Field{Key: "identity", Value: event.Identity()},
		)
	}
}

func dedupKey(event *InboundEvent) string {
	return "dedup:" + event.Identity()
}
