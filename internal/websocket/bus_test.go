package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/pkg/protocol"
)

func newTestHub() *Hub {
	return NewHub(NewRegistry(), HubOptions{
		WriteWait:        time.Second,
		PongWait:         time.Second,
		PingPeriod:       time.Second,
		MaxMessageSize:   4096,
		EvictionInterval: time.Minute,
		IdleThreshold:    time.Hour,
	}, zap.NewNop())
}

// attachClient wires a client into the hub without a real socket.
func attachClient(h *Hub, connID, userID, eventID string) *Client {
	client := &Client{ID: connID, Hub: h, Send: make(chan []byte, 8)}
	h.clientsMutex.Lock()
	h.clients[connID] = client
	h.clientsMutex.Unlock()

	h.registry.Register(connID, userID, protocol.PlatformWeb)
	if eventID != "" {
		h.registry.Subscribe(connID, eventID)
	}
	return client
}

func receiveMessage(t *testing.T, client *Client) *protocol.Message {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshaling delivered message: %v", err)
		}
		return &msg
	default:
		t.Fatal("expected a delivered message")
		return nil
	}
}

func TestEventBus_FanOutExcludesOriginator(t *testing.T) {
	hub := newTestHub()
	bus := NewEventBus(hub, zap.NewNop())

	origin := attachClient(hub, "origin", "user1", "event1")
	peer := attachClient(hub, "peer", "user2", "event1")

	bus.PublishSyncEvent(&domain.SyncEvent{
		Type:      domain.SyncGuestCreated,
		EventID:   "event1",
		Timestamp: time.Now(),
		UserID:    "user1",
	}, "origin")

	msg := receiveMessage(t, peer)
	if msg.Type != protocol.TypeSyncEvent {
		t.Errorf("expected sync_event, got %q", msg.Type)
	}
	var evt domain.SyncEvent
	if err := msg.UnmarshalPayload(&evt); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if evt.Type != domain.SyncGuestCreated {
		t.Errorf("expected guest_created, got %q", evt.Type)
	}

	select {
	case raw := <-origin.Send:
		t.Errorf("originator should not receive its own event, got %s", raw)
	default:
	}
}

func TestEventBus_FanOutIsScopedToEvent(t *testing.T) {
	hub := newTestHub()
	bus := NewEventBus(hub, zap.NewNop())

	subscribed := attachClient(hub, "conn1", "user1", "event1")
	other := attachClient(hub, "conn2", "user2", "event2")
	unsubscribed := attachClient(hub, "conn3", "user3", "")

	bus.PublishSyncEvent(&domain.SyncEvent{
		Type:    domain.SyncTableUpdated,
		EventID: "event1",
	}, "")

	receiveMessage(t, subscribed)

	for _, client := range []*Client{other, unsubscribed} {
		select {
		case raw := <-client.Send:
			t.Errorf("connection %s should not receive event1 traffic, got %s", client.ID, raw)
		default:
		}
	}
}

func TestEventBus_ConflictReachesOriginator(t *testing.T) {
	hub := newTestHub()
	bus := NewEventBus(hub, zap.NewNop())

	origin := attachClient(hub, "origin", "user1", "event1")
	peer := attachClient(hub, "peer", "user2", "event1")

	bus.PublishConflict(&domain.Conflict{
		ID:           "conflict1",
		EventID:      "event1",
		Entity:       domain.EntityGuest,
		EntityID:     "guest1",
		WinnerUserID: "user2",
		Resolution:   domain.ResolutionLastWriteWins,
	})

	for _, client := range []*Client{origin, peer} {
		msg := receiveMessage(t, client)
		if msg.Type != protocol.TypeConflictResolved {
			t.Errorf("expected conflict_resolved for %s, got %q", client.ID, msg.Type)
		}
	}
}

func TestHub_SendBufferFullDropsConnection(t *testing.T) {
	hub := newTestHub()

	client := &Client{ID: "slow", Hub: hub, Send: make(chan []byte, 1)}
	hub.clientsMutex.Lock()
	hub.clients["slow"] = client
	hub.clientsMutex.Unlock()
	hub.registry.Register("slow", "user1", protocol.PlatformWeb)

	hub.sendBytes("slow", []byte("one"))
	hub.sendBytes("slow", []byte("two"))

	select {
	case dropped := <-hub.Unregister:
		if dropped.ID != "slow" {
			t.Errorf("expected slow connection dropped, got %s", dropped.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the full-buffer connection to be unregistered")
	}
}
