// Package syncclient is the client-side sync agent shared by the web and
// mobile frontends: a durable offline operation queue, a reconnecting
// transport bound to one event id, and a typed event feed for the UI layer.
package syncclient

import (
	"strings"
	"sync"
	"time"
)

// Event kinds published on the feed. Subscribers filter by prefix, so
// "transport." matches every connectivity change.
const (
	KindConnected        = "transport.connected"
	KindDisconnected     = "transport.disconnected"
	KindConnectionFailed = "transport.connection_failed"
	KindSyncEvent        = "server.sync_event"
	KindSyncData         = "server.sync_data"
	KindSyncError        = "server.sync_error"
	KindConflictResolved = "server.conflict_resolved"
	KindOperationSynced  = "queue.operation_synced"
	KindOperationFailed  = "queue.operation_failed"
)

// FeedEvent is one notification delivered to UI subscribers. The agent does
// not reconcile inbound server events against its own pending queue; it
// re-emits them untouched and the UI owns the merge.
type FeedEvent struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

type feedSubscription struct {
	prefix string
	ch     chan FeedEvent
}

// Feed is an in-process publish/subscribe channel between the transport,
// the agent, and the UI layer.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]*feedSubscription
	next int
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*feedSubscription)}
}

// Subscribe returns a channel receiving events whose kind starts with the
// given prefix, and an unsubscribe function. Removal is precise: only the
// returned subscription is cancelled.
func (f *Feed) Subscribe(prefix string, bufSize int) (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, bufSize)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = &feedSubscription{prefix: prefix, ch: ch}
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Publish delivers the event to every matching subscriber without blocking;
// a full subscriber buffer drops the event.
func (f *Feed) Publish(evt FeedEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}
