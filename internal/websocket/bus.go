package websocket

import (
	"encoding/json"

	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/pkg/protocol"
)

// EventBus fans applied mutations out to every connection subscribed to the
// owning event id. Delivery is best-effort: a failure to one peer is logged
// and never retried here — a client that missed an event reconciles through
// a full snapshot on reconnect.
type EventBus struct {
	hub    *Hub
	logger *zap.Logger
}

func NewEventBus(hub *Hub, logger *zap.Logger) *EventBus {
	return &EventBus{hub: hub, logger: logger}
}

// PublishSyncEvent delivers the event to all subscribers of its event id,
// skipping the originating connection when one is given.
func (b *EventBus) PublishSyncEvent(event *domain.SyncEvent, excludeConnID string) {
	msg, err := protocol.NewMessage(protocol.TypeSyncEvent, event)
	if err != nil {
		b.logger.Error("encoding sync event", zap.String("event_id", event.EventID), zap.Error(err))
		return
	}
	b.fanOut(event.EventID, msg, excludeConnID, string(event.Type))
}

// PublishConflict notifies every subscriber of the event id, the originator
// included: both sides of a concurrent edit should learn who won.
func (b *EventBus) PublishConflict(conflict *domain.Conflict) {
	msg, err := protocol.NewMessage(protocol.TypeConflictResolved, conflict)
	if err != nil {
		b.logger.Error("encoding conflict", zap.String("event_id", conflict.EventID), zap.Error(err))
		return
	}
	b.fanOut(conflict.EventID, msg, "", "conflict_resolved")
}

func (b *EventBus) fanOut(eventID string, msg *protocol.Message, excludeConnID, kind string) {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshaling fan-out message", zap.Error(err))
		return
	}

	subscribers := b.hub.Registry().Subscribers(eventID)
	delivered := 0
	for _, connID := range subscribers {
		if connID == excludeConnID {
			continue
		}
		b.hub.sendBytes(connID, raw)
		delivered++
	}

	b.logger.Debug("fan-out complete",
		zap.String("event_id", eventID),
		zap.String("kind", kind),
		zap.Int("subscribers", delivered))
}
