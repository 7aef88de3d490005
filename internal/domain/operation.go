package domain

import (
	"encoding/json"
	"time"
)

type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

type EntityKind string

const (
	EntityGuest EntityKind = "guest"
	EntityTable EntityKind = "table"
	EntityVenue EntityKind = "venue"
	EntityRSVP  EntityKind = "rsvp"
)

// syncEventTypes maps every recognized entity/operation pair to the sync
// event type emitted after the mutation is applied. An absent pair is a
// validation error, rejected before any repository call.
var syncEventTypes = map[EntityKind]map[OperationType]SyncEventType{
	EntityGuest: {
		OperationCreate: SyncGuestCreated,
		OperationUpdate: SyncGuestUpdated,
		OperationDelete: SyncGuestDeleted,
	},
	EntityTable: {
		OperationCreate: SyncTableUpdated,
		OperationUpdate: SyncTableUpdated,
		OperationDelete: SyncTableUpdated,
	},
	EntityVenue: {
		OperationCreate: SyncVenueUpdated,
		OperationUpdate: SyncVenueUpdated,
		OperationDelete: SyncVenueUpdated,
	},
	EntityRSVP: {
		OperationUpdate: SyncRSVPUpdated,
	},
}

// SyncEventTypeFor returns the sync event type for an entity/operation pair
// and whether the pair is recognized.
func SyncEventTypeFor(entity EntityKind, op OperationType) (SyncEventType, bool) {
	types, ok := syncEventTypes[entity]
	if !ok {
		return "", false
	}
	t, ok := types[op]
	return t, ok
}

// Operation is a client-submitted mutation. ID is generated on the client
// and doubles as the idempotency key for retried submissions. OriginConnID
// is the submitter's live sync connection, if it has one, so the fan-out
// can skip echoing the mutation back to it.
type Operation struct {
	ID           string          `json:"id" validate:"required"`
	Type         OperationType   `json:"type" validate:"required,oneof=create update delete"`
	Entity       EntityKind      `json:"entity" validate:"required"`
	EntityID     string          `json:"entity_id" validate:"required"`
	Data         json.RawMessage `json:"data,omitempty"`
	EventID      string          `json:"event_id" validate:"required"`
	UserID       string          `json:"user_id,omitempty"`
	OriginConnID string          `json:"origin_conn_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	MaxRetries   int             `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
}

// OperationResult is what Submit returns, and what the dedup window caches
// so a retried submission observes the same outcome.
type OperationResult struct {
	OperationID string          `json:"operation_id"`
	EventType   SyncEventType   `json:"event_type"`
	Entity      json.RawMessage `json:"entity,omitempty"`
	Conflict    *Conflict       `json:"conflict,omitempty"`
	AppliedAt   time.Time       `json:"applied_at"`
}
