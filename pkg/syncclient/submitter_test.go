package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOperation() *OfflineOperation {
	return &OfflineOperation{
		ID:        "op1",
		Type:      "create",
		Entity:    "guest",
		EntityID:  "g1",
		Data:      json.RawMessage(`{"name":"Ada"}`),
		EventID:   "event1",
		UserID:    "u1",
		CreatedAt: time.Now(),
	}
}

func TestHTTPSubmitter_SubmitCarriesOriginConnectionID(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sync/operations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(submitEnvelope{
			Success: true,
			Data:    json.RawMessage(`{"operation_id":"op1","event_type":"guest_created"}`),
		})
	}))
	defer srv.Close()

	submitter := NewHTTPSubmitter(srv.URL)
	result, err := submitter.Submit(context.Background(), testOperation(), "conn-7")
	require.NoError(t, err)

	assert.Equal(t, "op1", result.OperationID)
	assert.Equal(t, "op1", got.ID)
	assert.Equal(t, "event1", got.EventID)
	assert.Equal(t, "conn-7", got.OriginConnID)

	// No live connection means no origin to suppress on the server side.
	_, err = submitter.Submit(context.Background(), testOperation(), "")
	require.NoError(t, err)
	assert.Equal(t, "", got.OriginConnID)
}

func TestHTTPSubmitter_RejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(submitEnvelope{Error: "event not found"})
	}))
	defer srv.Close()

	_, err := NewHTTPSubmitter(srv.URL).Submit(context.Background(), testOperation(), "")
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Contains(t, err.Error(), "event not found")
}

func TestHTTPSubmitter_ServerErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(submitEnvelope{Error: "database unavailable"})
	}))
	defer srv.Close()

	_, err := NewHTTPSubmitter(srv.URL).Submit(context.Background(), testOperation(), "")
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}
