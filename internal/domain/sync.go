package domain

import (
	"encoding/json"
	"time"
)

type SyncEventType string

const (
	SyncGuestCreated     SyncEventType = "guest_created"
	SyncGuestUpdated     SyncEventType = "guest_updated"
	SyncGuestDeleted     SyncEventType = "guest_deleted"
	SyncTableUpdated     SyncEventType = "table_updated"
	SyncVenueUpdated     SyncEventType = "venue_updated"
	SyncRSVPUpdated      SyncEventType = "rsvp_updated"
	SyncAnalyticsUpdated SyncEventType = "analytics_updated"
)

// SyncEvent is an immutable fact describing one applied mutation. It is
// fanned out to every connection subscribed to EventID and never persisted:
// a client that missed it reconciles through a full snapshot instead.
type SyncEvent struct {
	Type      SyncEventType   `json:"type"`
	EventID   string          `json:"event_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id,omitempty"`
}

// SyncSnapshot is a point-in-time aggregate of one event's state, rebuilt
// from the repositories on every request.
type SyncSnapshot struct {
	Event         *Event          `json:"event"`
	Guests        []*Guest        `json:"guests"`
	Tables        []*Table        `json:"tables"`
	VenueElements []*VenueElement `json:"venue_elements"`
	GeneratedAt   time.Time       `json:"generated_at"`
}
