package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wedding-sync-server/pkg/protocol"
)

const defaultMaxAttempts = 3

// Connection is the slice of the transport the agent needs. It lets tests
// drive the agent without a live server.
type Connection interface {
	IsConnected() bool
	ConnectionID() string
	SendControl(msg *protocol.Message) error
}

// SyncStatus summarizes the agent for status display in the UI.
type SyncStatus struct {
	IsOnline           bool `json:"is_online"`
	TransportConnected bool `json:"transport_connected"`
	PendingCount       int  `json:"pending_count"`
	FailedCount        int  `json:"failed_count"`
	SyncInProgress     bool `json:"sync_in_progress"`
}

// Agent owns the offline operation queue. Every local mutation is persisted
// before any delivery attempt; delivery happens immediately when the
// transport is up, or on the next SyncPendingOperations call otherwise.
type Agent struct {
	store       OperationStore
	submitter   Submitter
	conn        Connection
	feed        *Feed
	logger      *zap.Logger
	maxAttempts int

	mu      sync.Mutex
	syncing bool
}

func NewAgent(store OperationStore, submitter Submitter, conn Connection, feed *Feed, logger *zap.Logger) *Agent {
	return &Agent{
		store:       store,
		submitter:   submitter,
		conn:        conn,
		feed:        feed,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
}

// PerformOperation records a local mutation and, when the transport is up,
// delivers it right away. The operation id is returned so the caller can
// correlate queue feed events.
func (a *Agent) PerformOperation(ctx context.Context, opType, entity, entityID, eventID, userID string, data json.RawMessage) (string, error) {
	now := time.Now()
	op := &OfflineOperation{
		ID:        uuid.New().String(),
		Type:      opType,
		Entity:    entity,
		EntityID:  entityID,
		Data:      data,
		EventID:   eventID,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.Save(op); err != nil {
		return "", fmt.Errorf("persisting operation: %w", err)
	}

	if a.conn.IsConnected() {
		if err := a.SyncPendingOperations(ctx); err != nil {
			a.logger.Warn("immediate sync failed, operation stays queued",
				zap.String("operation_id", op.ID), zap.Error(err))
		}
	}
	return op.ID, nil
}

// SyncPendingOperations drains the pending queue in creation order. Failed
// operations are not picked up; they re-enter the queue only through
// RetryFailedOperations. Concurrent calls collapse into one pass.
func (a *Agent) SyncPendingOperations(ctx context.Context) error {
	a.mu.Lock()
	if a.syncing {
		a.mu.Unlock()
		return nil
	}
	a.syncing = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.syncing = false
		a.mu.Unlock()
	}()

	ops, err := a.store.ListByStatus(StatusPending)
	if err != nil {
		return fmt.Errorf("listing pending operations: %w", err)
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.deliver(ctx, op)
	}
	return nil
}

func (a *Agent) deliver(ctx context.Context, op *OfflineOperation) {
	op.Status = StatusSyncing
	op.UpdatedAt = time.Now()
	if err := a.store.Update(op); err != nil {
		a.logger.Error("marking operation syncing", zap.String("operation_id", op.ID), zap.Error(err))
		return
	}

	// The live connection id lets the server skip echoing the mutation back
	// to this client. Empty when delivering offline-queued work with the
	// transport down.
	var originConnID string
	if a.conn.IsConnected() {
		originConnID = a.conn.ConnectionID()
	}

	result, err := a.submitter.Submit(ctx, op, originConnID)
	if err == nil {
		if err := a.store.Delete(op.ID); err != nil {
			a.logger.Error("removing synced operation", zap.String("operation_id", op.ID), zap.Error(err))
		}
		a.feed.Publish(FeedEvent{Kind: KindOperationSynced, Payload: result})
		return
	}

	op.RetryCount++
	op.LastError = err.Error()
	op.UpdatedAt = time.Now()
	if IsTerminal(err) || op.RetryCount >= a.maxAttempts {
		op.Status = StatusFailed
		a.feed.Publish(FeedEvent{Kind: KindOperationFailed, Payload: op})
		a.logger.Warn("operation failed permanently",
			zap.String("operation_id", op.ID),
			zap.Int("retry_count", op.RetryCount),
			zap.Error(err))
	} else {
		op.Status = StatusPending
		a.logger.Info("operation delivery failed, will retry",
			zap.String("operation_id", op.ID),
			zap.Int("retry_count", op.RetryCount),
			zap.Error(err))
	}
	if err := a.store.Update(op); err != nil {
		a.logger.Error("recording delivery failure", zap.String("operation_id", op.ID), zap.Error(err))
	}
}

// RequestFullSync asks the server for a fresh snapshot of the event over the
// transport. The reply arrives on the feed as a server.sync_data event.
func (a *Agent) RequestFullSync(eventID string) error {
	msg, err := protocol.NewMessage(protocol.TypeRequestSync, &protocol.RequestSyncPayload{EventID: eventID})
	if err != nil {
		return err
	}
	return a.conn.SendControl(msg)
}

// RetryFailedOperations moves every failed operation back to pending with a
// reset retry count, then runs a sync pass.
func (a *Agent) RetryFailedOperations(ctx context.Context) error {
	failed, err := a.store.ListByStatus(StatusFailed)
	if err != nil {
		return fmt.Errorf("listing failed operations: %w", err)
	}
	for _, op := range failed {
		op.Status = StatusPending
		op.RetryCount = 0
		op.LastError = ""
		op.UpdatedAt = time.Now()
		if err := a.store.Update(op); err != nil {
			return fmt.Errorf("requeueing operation %s: %w", op.ID, err)
		}
	}
	return a.SyncPendingOperations(ctx)
}

// Status reports connectivity and queue depth.
func (a *Agent) Status() (SyncStatus, error) {
	counts, err := a.store.Counts()
	if err != nil {
		return SyncStatus{}, err
	}
	connected := a.conn.IsConnected()

	a.mu.Lock()
	syncing := a.syncing
	a.mu.Unlock()

	return SyncStatus{
		IsOnline:           connected,
		TransportConnected: connected,
		PendingCount:       counts.Pending,
		FailedCount:        counts.Failed,
		SyncInProgress:     syncing,
	}, nil
}
