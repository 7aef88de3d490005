package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/internal/repository"
	"wedding-sync-server/internal/websocket"
	"wedding-sync-server/pkg/protocol"
)

// SnapshotProvider is the read side used to answer request_sync messages.
type SnapshotProvider interface {
	BuildSnapshot(ctx context.Context, eventID string) (*domain.SyncSnapshot, error)
}

// ConflictPublisher re-broadcasts a client's conflict acknowledgement to
// the other subscribers of the event.
type ConflictPublisher interface {
	PublishConflict(conflict *domain.Conflict)
}

// WebSocketHandler upgrades HTTP requests to sync channel connections.
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader ws.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, readBufferSize, writeBufferSize int, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.hub)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// SyncMessageDispatcher handles decoded inbound sync channel messages, one
// case per client-to-server message type.
type SyncMessageDispatcher struct {
	registry  *websocket.Registry
	hub       *websocket.Hub
	snapshots SnapshotProvider
	conflicts ConflictPublisher
	logger    *zap.Logger
}

func NewSyncMessageDispatcher(
	hub *websocket.Hub,
	snapshots SnapshotProvider,
	conflicts ConflictPublisher,
	logger *zap.Logger,
) *SyncMessageDispatcher {
	return &SyncMessageDispatcher{
		registry:  hub.Registry(),
		hub:       hub,
		snapshots: snapshots,
		conflicts: conflicts,
		logger:    logger,
	}
}

func (d *SyncMessageDispatcher) HandleSyncMessage(client *websocket.Client, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeRegister:
		return d.handleRegister(client, msg)

	case protocol.TypeSubscribeEvent:
		return d.handleSubscribe(client, msg)

	case protocol.TypeUnsubscribeEvent:
		d.registry.Unsubscribe(client.ID)
		return nil

	case protocol.TypeRequestSync:
		return d.handleRequestSync(client, msg)

	case protocol.TypeResolveConflict:
		return d.handleResolveConflict(client, msg)

	case protocol.TypeHeartbeat:
		d.registry.Heartbeat(client.ID)
		return nil

	default:
		d.logger.Warn("unknown message type",
			zap.String("conn_id", client.ID),
			zap.String("type", string(msg.Type)))
		return nil
	}
}

func (d *SyncMessageDispatcher) handleRegister(client *websocket.Client, msg *protocol.Message) error {
	var payload protocol.RegisterPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decoding register payload: %w", err)
	}

	d.registry.Register(client.ID, payload.UserID, payload.Platform)
	if payload.EventID != "" {
		d.registry.Subscribe(client.ID, payload.EventID)
	}

	ack, err := protocol.NewMessage(protocol.TypeRegistered, &protocol.RegisteredPayload{
		ConnectionID: client.ID,
		EventID:      payload.EventID,
	})
	if err != nil {
		return err
	}
	return d.hub.SendToConnection(client.ID, ack)
}

func (d *SyncMessageDispatcher) handleSubscribe(client *websocket.Client, msg *protocol.Message) error {
	var payload protocol.SubscribeEventPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decoding subscribe payload: %w", err)
	}
	if !d.registry.Subscribe(client.ID, payload.EventID) {
		d.logger.Warn("subscribe for unknown connection", zap.String("conn_id", client.ID))
	}
	return nil
}

func (d *SyncMessageDispatcher) handleRequestSync(client *websocket.Client, msg *protocol.Message) error {
	var payload protocol.RequestSyncPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decoding request_sync payload: %w", err)
	}

	snapshot, err := d.snapshots.BuildSnapshot(context.Background(), payload.EventID)
	if err != nil {
		code := protocol.ErrCodeInternal
		if errors.Is(err, repository.ErrNotFound) {
			code = protocol.ErrCodeNotFound
		}
		errMsg, merr := protocol.NewMessage(protocol.TypeSyncError, &protocol.SyncErrorPayload{
			Code:    code,
			Message: fmt.Sprintf("snapshot for event %s failed", payload.EventID),
		})
		if merr != nil {
			return merr
		}
		d.hub.SendToConnection(client.ID, errMsg)
		return err
	}

	data, err := protocol.NewMessage(protocol.TypeSyncData, snapshot)
	if err != nil {
		return err
	}
	return d.hub.SendToConnection(client.ID, data)
}

// handleResolveConflict echoes a client's conflict acknowledgement to the
// event's subscribers. Purely informational: the server applied
// last-write-wins long before this arrives.
func (d *SyncMessageDispatcher) handleResolveConflict(client *websocket.Client, msg *protocol.Message) error {
	var payload protocol.ResolveConflictPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decoding resolve_conflict payload: %w", err)
	}

	conn, _ := d.registry.Get(client.ID)
	d.conflicts.PublishConflict(&domain.Conflict{
		ID:           payload.ConflictID,
		EventID:      payload.EventID,
		Entity:       domain.EntityKind(payload.Entity),
		EntityID:     payload.EntityID,
		WinnerUserID: conn.UserID,
		WinnerAt:     payload.WinnerAt,
		LoserAt:      payload.LoserAt,
		Resolution:   domain.ResolutionStrategy(payload.Resolution),
		DetectedAt:   time.Now(),
	})
	return nil
}
