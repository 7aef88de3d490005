// Package protocol defines the wire messages exchanged over the persistent
// sync channel. Both the server and the client agent depend on it, so the
// protocol stays in lockstep across platforms.
package protocol

import (
	"encoding/json"
	"time"
)

type MessageType string

// Client to server.
const (
	TypeRegister         MessageType = "register"
	TypeSubscribeEvent   MessageType = "subscribe_event"
	TypeUnsubscribeEvent MessageType = "unsubscribe_event"
	TypeRequestSync      MessageType = "request_sync"
	TypeResolveConflict  MessageType = "resolve_conflict"
	TypeHeartbeat        MessageType = "heartbeat"
)

// Server to client.
const (
	TypeRegistered       MessageType = "registered"
	TypeSyncEvent        MessageType = "sync_event"
	TypeSyncData         MessageType = "sync_data"
	TypeSyncError        MessageType = "sync_error"
	TypeConflictResolved MessageType = "conflict_resolved"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

type RegisterPayload struct {
	UserID   string   `json:"user_id,omitempty"`
	EventID  string   `json:"event_id,omitempty"`
	Platform Platform `json:"platform"`
}

type RegisteredPayload struct {
	ConnectionID string `json:"connection_id"`
	EventID      string `json:"event_id,omitempty"`
}

type SubscribeEventPayload struct {
	EventID string `json:"event_id"`
}

type UnsubscribeEventPayload struct {
	EventID string `json:"event_id"`
}

type RequestSyncPayload struct {
	EventID string `json:"event_id"`
}

// ResolveConflictPayload echoes a conflict the client received, so the
// entity fields and timestamps come from the original conflict_resolved
// notification and survive the re-broadcast intact.
type ResolveConflictPayload struct {
	EventID    string    `json:"event_id"`
	ConflictID string    `json:"conflict_id"`
	Entity     string    `json:"entity,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Resolution string    `json:"resolution"`
	WinnerAt   time.Time `json:"winner_at,omitempty"`
	LoserAt    time.Time `json:"loser_at,omitempty"`
}

type SyncErrorPayload struct {
	OperationID string `json:"operation_id,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// Error codes carried by sync_error payloads.
const (
	ErrCodeValidation = "validation_error"
	ErrCodeNotFound   = "not_found"
	ErrCodeInternal   = "internal_error"
)

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
