package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wedding-sync-server/pkg/protocol"
)

const (
	defaultHeartbeatInterval    = 30 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultHandshakeTimeout     = 10 * time.Second
)

type TransportConfig struct {
	URL                  string
	Platform             protocol.Platform
	HeartbeatInterval    time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
}

// Transport maintains the persistent sync channel: register/subscribe
// handshake, heartbeats, inbound dispatch onto the feed, and reconnection
// with exponential backoff up to a hard ceiling. Control messages sent
// while disconnected are queued and flushed in order after the next
// successful connect.
type Transport struct {
	cfg    TransportConfig
	feed   *Feed
	logger *zap.Logger

	mu           sync.Mutex
	conn         *ws.Conn
	pending      [][]byte
	eventID      string
	userID       string
	connectionID string
	stopBeat     chan struct{}

	writeMu   sync.Mutex
	connected atomic.Bool
	closing   atomic.Bool

	// sleep is the reconnect backoff wait, replaceable in tests.
	sleep func(time.Duration)
}

func NewTransport(cfg TransportConfig, feed *Feed, logger *zap.Logger) *Transport {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Transport{
		cfg:    cfg,
		feed:   feed,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Connect opens the channel, registers, subscribes to the event id, and
// returns once the server acknowledges. A failed first attempt is returned
// to the caller; automatic reconnection only covers later unexpected drops.
func (t *Transport) Connect(ctx context.Context, eventID, userID string) error {
	t.mu.Lock()
	t.eventID = eventID
	t.userID = userID
	t.mu.Unlock()
	t.closing.Store(false)

	return t.dial(ctx)
}

// Disconnect closes cleanly and clears bound identifiers. No reconnection
// is attempted.
func (t *Transport) Disconnect() {
	t.closing.Store(true)
	t.connected.Store(false)

	t.mu.Lock()
	if t.stopBeat != nil {
		close(t.stopBeat)
		t.stopBeat = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.eventID = ""
	t.userID = ""
	t.connectionID = ""
	t.mu.Unlock()

	t.feed.Publish(FeedEvent{Kind: KindDisconnected, Payload: "client closed"})
}

func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// ConnectionID returns the server-assigned id of the current connection.
func (t *Transport) ConnectionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectionID
}

func (t *Transport) dial(ctx context.Context) error {
	dialer := ws.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", t.cfg.URL, err)
	}

	t.mu.Lock()
	eventID, userID := t.eventID, t.userID
	t.mu.Unlock()

	register, err := protocol.NewMessage(protocol.TypeRegister, &protocol.RegisterPayload{
		UserID:   userID,
		EventID:  eventID,
		Platform: t.cfg.Platform,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := writeMessage(conn, register); err != nil {
		conn.Close()
		return fmt.Errorf("sending register: %w", err)
	}

	ack, err := awaitRegistered(conn, t.cfg.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return err
	}

	stopBeat := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.connectionID = ack.ConnectionID
	t.stopBeat = stopBeat
	pending := t.pending
	t.pending = nil
	// Connected must flip inside the same critical section that installs
	// the conn, or a concurrent SendControl queues onto the emptied pending
	// slice and the message waits for a reconnect that may never come.
	t.connected.Store(true)
	t.mu.Unlock()

	// Flush control messages queued while disconnected, in order. A failed
	// write puts the unsent tail back at the head of the queue for the next
	// connect instead of dropping it.
	for i, raw := range pending {
		if err := t.writeRaw(conn, raw); err != nil {
			t.logger.Warn("flushing queued control message failed", zap.Error(err))
			t.requeueUnsent(pending[i:])
			break
		}
	}

	go t.readLoop(conn)
	go t.heartbeatLoop(conn, stopBeat)

	t.feed.Publish(FeedEvent{Kind: KindConnected, Payload: ack.ConnectionID})
	return nil
}

func awaitRegistered(conn *ws.Conn, timeout time.Duration) (*protocol.RegisteredPayload, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("awaiting registration ack: %w", err)
		}

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != protocol.TypeRegistered {
			continue
		}

		var ack protocol.RegisteredPayload
		if err := msg.UnmarshalPayload(&ack); err != nil {
			return nil, fmt.Errorf("decoding registration ack: %w", err)
		}
		return &ack, nil
	}
}

func (t *Transport) readLoop(conn *ws.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.handleDrop(conn, err)
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.logger.Warn("malformed server message", zap.Error(err))
			continue
		}
		t.dispatch(&msg)
	}
}

func (t *Transport) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSyncEvent:
		t.feed.Publish(FeedEvent{Kind: KindSyncEvent, Timestamp: msg.Timestamp, Payload: msg})
	case protocol.TypeSyncData:
		t.feed.Publish(FeedEvent{Kind: KindSyncData, Timestamp: msg.Timestamp, Payload: msg})
	case protocol.TypeSyncError:
		t.feed.Publish(FeedEvent{Kind: KindSyncError, Timestamp: msg.Timestamp, Payload: msg})
	case protocol.TypeConflictResolved:
		t.feed.Publish(FeedEvent{Kind: KindConflictResolved, Timestamp: msg.Timestamp, Payload: msg})
	case protocol.TypeRegistered:
		// Already handled during the handshake.
	default:
		t.logger.Debug("unhandled server message", zap.String("type", string(msg.Type)))
	}
}

// handleDrop reacts to a broken read. Server-initiated or local close is
// final; anything else starts the reconnect state machine.
func (t *Transport) handleDrop(conn *ws.Conn, readErr error) {
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
		if t.stopBeat != nil {
			close(t.stopBeat)
			t.stopBeat = nil
		}
	}
	t.mu.Unlock()
	if !current {
		return
	}

	t.connected.Store(false)
	t.feed.Publish(FeedEvent{Kind: KindDisconnected, Payload: readErr.Error()})

	if t.closing.Load() || ws.IsCloseError(readErr, ws.CloseNormalClosure, ws.CloseGoingAway) {
		return
	}
	go t.attemptReconnect()
}

// attemptReconnect retries with 2^attempt seconds of delay per attempt.
// After the ceiling it emits a terminal connection_failed event and stops;
// a further reconnect must be triggered explicitly by the app.
func (t *Transport) attemptReconnect() {
	for attempt := 1; attempt <= t.cfg.MaxReconnectAttempts; attempt++ {
		t.sleep(backoffDelay(attempt))
		if t.closing.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.HandshakeTimeout)
		err := t.dial(ctx)
		cancel()
		if err == nil {
			t.logger.Info("reconnected", zap.Int("attempt", attempt))
			return
		}
		t.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	t.feed.Publish(FeedEvent{Kind: KindConnectionFailed, Payload: t.cfg.MaxReconnectAttempts})
}

func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// requeueUnsent puts messages that failed to flush back at the head of the
// pending queue, ahead of anything queued since, preserving send order.
func (t *Transport) requeueUnsent(unsent [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(append([][]byte{}, unsent...), t.pending...)
}

// SendControl sends a control message, or queues it for delivery after the
// next successful connect when the channel is down.
func (t *Transport) SendControl(msg *protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	if conn == nil || !t.connected.Load() {
		t.pending = append(t.pending, raw)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.writeRaw(conn, raw)
}

func (t *Transport) heartbeatLoop(conn *ws.Conn, stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	beat, err := protocol.NewMessage(protocol.TypeHeartbeat, nil)
	if err != nil {
		return
	}
	raw, _ := json.Marshal(beat)

	for {
		select {
		case <-ticker.C:
			if err := t.writeRaw(conn, raw); err != nil {
				// The read loop notices the broken socket and handles it.
				conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

func (t *Transport) writeRaw(conn *ws.Conn, raw []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	return conn.WriteMessage(ws.TextMessage, raw)
}

func writeMessage(conn *ws.Conn, msg *protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, raw)
}
