package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"wedding-sync-server/pkg/protocol"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// MessageHandler dispatches one decoded inbound message. Handlers run on
// the hub's loop goroutine, one message at a time per connection.
type MessageHandler interface {
	HandleSyncMessage(client *Client, msg *protocol.Message) error
}

// Hub owns the live client set and the registry. It runs a single loop that
// serializes register/unregister/message handling, in between periodic idle
// eviction sweeps.
type Hub struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex

	registry *Registry
	logger   *zap.Logger

	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64

	evictionInterval time.Duration
	idleThreshold    time.Duration

	handler MessageHandler
}

type HubOptions struct {
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxMessageSize   int64
	EvictionInterval time.Duration
	IdleThreshold    time.Duration
}

func NewHub(registry *Registry, opts HubOptions, logger *zap.Logger) *Hub {
	return &Hub{
		clients:          make(map[string]*Client),
		registry:         registry,
		logger:           logger,
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		HandleMessage:    make(chan *ClientMessage),
		writeWait:        opts.WriteWait,
		pongWait:         opts.PongWait,
		pingPeriod:       opts.PingPeriod,
		maxMessageSize:   opts.MaxMessageSize,
		evictionInterval: opts.EvictionInterval,
		idleThreshold:    opts.IdleThreshold,
	}
}

func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.handler = handler
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Run(ctx context.Context) {
	evictTicker := time.NewTicker(h.evictionInterval)
	defer evictTicker.Stop()

	for {
		select {
		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case clientMsg := <-h.HandleMessage:
			h.processMessage(clientMsg)

		case <-evictTicker.C:
			h.evictStale()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.clientsMutex.Lock()
	h.clients[client.ID] = client
	h.clientsMutex.Unlock()

	// Unsubscribed until a register/subscribe message arrives.
	h.registry.Register(client.ID, "", "")

	h.logger.Info("connection accepted", zap.String("conn_id", client.ID))
}

func (h *Hub) removeClient(client *Client) {
	h.clientsMutex.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMutex.Unlock()

	if ok {
		h.registry.Unregister(client.ID)
		h.logger.Info("connection closed", zap.String("conn_id", client.ID))
	}
}

func (h *Hub) processMessage(clientMsg *ClientMessage) {
	var msg protocol.Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		h.logger.Warn("malformed message", zap.String("conn_id", clientMsg.Client.ID), zap.Error(err))
		return
	}

	if h.handler != nil {
		if err := h.handler.HandleSyncMessage(clientMsg.Client, &msg); err != nil {
			h.logger.Error("message handling failed",
				zap.String("conn_id", clientMsg.Client.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(err))
		}
	}
}

// evictStale removes connections with no heartbeat past the idle threshold
// and closes their sockets. Silent: the evicted client discovers staleness
// on its next send attempt.
func (h *Hub) evictStale() {
	evicted := h.registry.EvictInactive(h.idleThreshold)
	if len(evicted) == 0 {
		return
	}

	h.clientsMutex.Lock()
	for _, id := range evicted {
		if client, ok := h.clients[id]; ok {
			delete(h.clients, id)
			close(client.Send)
			client.Conn.Close()
		}
	}
	h.clientsMutex.Unlock()

	h.logger.Info("evicted stale connections", zap.Int("count", len(evicted)))
}

// SendToConnection marshals the message and queues it on one connection.
// Non-blocking: a full send buffer drops the message and is logged.
func (h *Hub) SendToConnection(connID string, msg *protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.sendBytes(connID, raw)
	return nil
}

// sendBytes delivers pre-marshaled bytes to one connection without
// blocking. A peer whose buffer is full is disconnected rather than allowed
// to stall delivery to others.
func (h *Hub) sendBytes(connID string, raw []byte) {
	h.clientsMutex.RLock()
	client, ok := h.clients[connID]
	h.clientsMutex.RUnlock()
	if !ok {
		return
	}

	select {
	case client.Send <- raw:
	default:
		h.logger.Warn("send buffer full, dropping connection", zap.String("conn_id", connID))
		go func() { h.Unregister <- client }()
	}
}
