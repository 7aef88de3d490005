package syncclient

import (
	"encoding/json"
	"time"
)

type OperationStatus string

// Status only moves forward: pending → syncing → synced or failed. The one
// backward transition, failed → pending, happens only through an explicit
// RetryFailedOperations call.
const (
	StatusPending OperationStatus = "pending"
	StatusSyncing OperationStatus = "syncing"
	StatusSynced  OperationStatus = "synced"
	StatusFailed  OperationStatus = "failed"
)

// OfflineOperation is a client-local durable record of a mutation awaiting
// server application. It is persisted before any network attempt so it
// survives an app restart.
type OfflineOperation struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id"`
	Data       json.RawMessage `json:"data,omitempty"`
	EventID    string          `json:"event_id"`
	UserID     string          `json:"user_id,omitempty"`
	Status     OperationStatus `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// QueueCounts summarizes the queue for sync status display.
type QueueCounts struct {
	Pending int
	Failed  int
}

// OperationStore is the durable queue backing the agent. Implementations
// must return operations in creation order from ListByStatus.
type OperationStore interface {
	Save(op *OfflineOperation) error
	Get(id string) (*OfflineOperation, error)
	ListByStatus(statuses ...OperationStatus) ([]*OfflineOperation, error)
	Update(op *OfflineOperation) error
	Delete(id string) error
	Counts() (QueueCounts, error)
	Close() error
}
