package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SubmitResult is the server's acknowledgement of one applied operation.
type SubmitResult struct {
	OperationID string          `json:"operation_id"`
	EventType   string          `json:"event_type"`
	Entity      json.RawMessage `json:"entity,omitempty"`
	Conflict    json.RawMessage `json:"conflict,omitempty"`
	AppliedAt   time.Time       `json:"applied_at"`
}

// TerminalError marks a rejection that retrying cannot fix (validation
// failure, missing target entity). The agent fails the operation
// immediately instead of burning retry attempts.
type TerminalError struct {
	StatusCode int
	Message    string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("operation rejected (%d): %s", e.StatusCode, e.Message)
}

func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// Submitter delivers one queued operation to the server. originConnID is
// the agent's live sync connection id, empty when the transport is down, so
// the server can exclude the submitter from the fan-out.
type Submitter interface {
	Submit(ctx context.Context, op *OfflineOperation, originConnID string) (*SubmitResult, error)
}

// HTTPSubmitter posts operations to the server's sync intake endpoint.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type submitRequest struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Entity       string          `json:"entity"`
	EntityID     string          `json:"entity_id"`
	Data         json.RawMessage `json:"data,omitempty"`
	EventID      string          `json:"event_id"`
	UserID       string          `json:"user_id,omitempty"`
	OriginConnID string          `json:"origin_conn_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

type submitEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *HTTPSubmitter) Submit(ctx context.Context, op *OfflineOperation, originConnID string) (*SubmitResult, error) {
	body, err := json.Marshal(submitRequest{
		ID:           op.ID,
		Type:         op.Type,
		Entity:       op.Entity,
		EntityID:     op.EntityID,
		Data:         op.Data,
		EventID:      op.EventID,
		UserID:       op.UserID,
		OriginConnID: originConnID,
		Timestamp:    op.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding operation %s: %w", op.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/sync/operations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting operation %s: %w", op.ID, err)
	}
	defer resp.Body.Close()

	var envelope submitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && resp.StatusCode < 400 {
		return nil, fmt.Errorf("decoding response for %s: %w", op.ID, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
		return nil, &TerminalError{StatusCode: resp.StatusCode, Message: envelope.Error}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("server error %d for operation %s: %s", resp.StatusCode, op.ID, envelope.Error)
	}

	var result SubmitResult
	if err := json.Unmarshal(envelope.Data, &result); err != nil {
		return nil, fmt.Errorf("decoding result for %s: %w", op.ID, err)
	}
	return &result, nil
}
