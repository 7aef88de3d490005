package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wedding-sync-server/pkg/protocol"
)

type stubConn struct {
	connected bool
	connID    string
	sent      []*protocol.Message
}

func (c *stubConn) IsConnected() bool { return c.connected }

func (c *stubConn) ConnectionID() string { return c.connID }

func (c *stubConn) SendControl(msg *protocol.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

type stubSubmitter struct {
	errs      map[string]error
	submitted []string
	origins   []string
}

func (s *stubSubmitter) Submit(ctx context.Context, op *OfflineOperation, originConnID string) (*SubmitResult, error) {
	s.submitted = append(s.submitted, op.ID)
	s.origins = append(s.origins, originConnID)
	if err, ok := s.errs[op.ID]; ok && err != nil {
		return nil, err
	}
	return &SubmitResult{OperationID: op.ID}, nil
}

// failWith makes every submission of the id fail until the entry is
// deleted from errs.
func (s *stubSubmitter) failWith(id string, err error) {
	if s.errs == nil {
		s.errs = map[string]error{}
	}
	s.errs[id] = err
}

func newTestAgent(conn *stubConn, submitter *stubSubmitter) *Agent {
	return NewAgent(NewMemoryStore(), submitter, conn, NewFeed(), zap.NewNop())
}

func TestAgent_PerformOperationOnlineDeliversImmediately(t *testing.T) {
	conn := &stubConn{connected: true}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	opID, err := agent.PerformOperation(context.Background(),
		"create", "guest", "guest1", "event1", "user1",
		json.RawMessage(`{"name":"Ada"}`))
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	assert.Equal(t, []string{opID}, submitter.submitted)

	// Delivered operations leave the queue.
	status, err := agent.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.PendingCount)
	assert.Equal(t, 0, status.FailedCount)
}

// An operation delivered over a live transport must carry the transport's
// connection id, so the server can keep the originator out of the fan-out.
func TestAgent_DeliveryCarriesOriginConnectionID(t *testing.T) {
	conn := &stubConn{connected: true, connID: "conn-42"}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	_, err := agent.PerformOperation(context.Background(),
		"create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)

	require.Len(t, submitter.origins, 1)
	assert.Equal(t, "conn-42", submitter.origins[0])

	// Without a live connection there is no echo to suppress.
	conn.connected = false
	id2, err := agent.PerformOperation(context.Background(),
		"update", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)
	conn.connected = true
	conn.connID = ""
	require.NoError(t, agent.SyncPendingOperations(context.Background()))

	require.Len(t, submitter.origins, 2)
	assert.Equal(t, "", submitter.origins[1])
	assert.Equal(t, id2, submitter.submitted[1])
}

func TestAgent_OfflineOperationsQueueAndFlushInOrder(t *testing.T) {
	conn := &stubConn{connected: false}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	ctx := context.Background()
	id1, err := agent.PerformOperation(ctx, "create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)
	id2, err := agent.PerformOperation(ctx, "update", "table", "t1", "event1", "u1", nil)
	require.NoError(t, err)
	id3, err := agent.PerformOperation(ctx, "delete", "guest", "g2", "event1", "u1", nil)
	require.NoError(t, err)

	assert.Empty(t, submitter.submitted, "nothing delivered while offline")
	status, err := agent.Status()
	require.NoError(t, err)
	assert.Equal(t, 3, status.PendingCount)

	conn.connected = true
	require.NoError(t, agent.SyncPendingOperations(ctx))

	assert.Equal(t, []string{id1, id2, id3}, submitter.submitted, "creation order preserved")
	status, err = agent.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.PendingCount)
}

func TestAgent_TerminalRejectionFailsImmediately(t *testing.T) {
	conn := &stubConn{connected: false}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	ctx := context.Background()
	opID, err := agent.PerformOperation(ctx, "update", "guest", "missing", "event1", "u1", nil)
	require.NoError(t, err)
	submitter.failWith(opID, &TerminalError{StatusCode: 404, Message: "target entity not found"})

	require.NoError(t, agent.SyncPendingOperations(ctx))

	assert.Len(t, submitter.submitted, 1, "no retry for a terminal rejection")
	op, err := agent.store.Get(opID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, op.Status)
	assert.Contains(t, op.LastError, "target entity not found")
}

func TestAgent_RetriableFailureReturnsToPendingUntilCeiling(t *testing.T) {
	conn := &stubConn{connected: false}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	ctx := context.Background()
	opID, err := agent.PerformOperation(ctx, "create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)
	submitter.failWith(opID, errors.New("server unavailable"))

	// First two passes leave the operation retriable.
	for pass := 1; pass <= 2; pass++ {
		require.NoError(t, agent.SyncPendingOperations(ctx))
		op, err := agent.store.Get(opID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, op.Status, "pass %d", pass)
		assert.Equal(t, pass, op.RetryCount, "pass %d", pass)
	}

	// Third failure hits the ceiling.
	require.NoError(t, agent.SyncPendingOperations(ctx))
	op, err := agent.store.Get(opID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, op.Status)
	assert.Equal(t, 3, op.RetryCount)

	// Failed operations are skipped by later sync passes.
	require.NoError(t, agent.SyncPendingOperations(ctx))
	assert.Len(t, submitter.submitted, 3)
}

func TestAgent_RetryFailedOperationsResetsAndResyncs(t *testing.T) {
	conn := &stubConn{connected: false}
	submitter := &stubSubmitter{}
	agent := newTestAgent(conn, submitter)

	ctx := context.Background()
	opID, err := agent.PerformOperation(ctx, "create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)

	submitter.failWith(opID, errors.New("server unavailable"))
	for i := 0; i < 3; i++ {
		require.NoError(t, agent.SyncPendingOperations(ctx))
	}
	op, err := agent.store.Get(opID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, op.Status)

	// Server recovered; an explicit retry drains the failed set.
	delete(submitter.errs, opID)
	require.NoError(t, agent.RetryFailedOperations(ctx))

	_, err = agent.store.Get(opID)
	assert.ErrorIs(t, err, ErrOperationNotFound, "synced operation removed from queue")
	status, err := agent.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.FailedCount)
}

func TestAgent_SyncedOperationEmitsFeedEvent(t *testing.T) {
	conn := &stubConn{connected: false}
	submitter := &stubSubmitter{}
	feed := NewFeed()
	agent := NewAgent(NewMemoryStore(), submitter, conn, feed, zap.NewNop())

	events, unsub := feed.Subscribe("queue.", 8)
	defer unsub()

	ctx := context.Background()
	opID, err := agent.PerformOperation(ctx, "create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)
	require.NoError(t, agent.SyncPendingOperations(ctx))

	select {
	case evt := <-events:
		assert.Equal(t, KindOperationSynced, evt.Kind)
		result, ok := evt.Payload.(*SubmitResult)
		require.True(t, ok)
		assert.Equal(t, opID, result.OperationID)
	default:
		t.Fatal("expected a queue.operation_synced feed event")
	}
}

func TestAgent_RequestFullSync(t *testing.T) {
	conn := &stubConn{connected: true}
	agent := newTestAgent(conn, &stubSubmitter{})

	require.NoError(t, agent.RequestFullSync("event1"))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, protocol.TypeRequestSync, conn.sent[0].Type)

	var payload protocol.RequestSyncPayload
	require.NoError(t, conn.sent[0].UnmarshalPayload(&payload))
	assert.Equal(t, "event1", payload.EventID)
}

func TestAgent_StatusReflectsQueueAndConnectivity(t *testing.T) {
	conn := &stubConn{connected: false}
	agent := newTestAgent(conn, &stubSubmitter{})

	ctx := context.Background()
	_, err := agent.PerformOperation(ctx, "create", "guest", "g1", "event1", "u1", nil)
	require.NoError(t, err)

	status, err := agent.Status()
	require.NoError(t, err)
	assert.False(t, status.IsOnline)
	assert.Equal(t, 1, status.PendingCount)
	assert.False(t, status.SyncInProgress)

	conn.connected = true
	status, err = agent.Status()
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.True(t, status.TransportConnected)
}
