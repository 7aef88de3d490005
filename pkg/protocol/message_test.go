package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeRegister, &RegisterPayload{
		UserID:   "user1",
		EventID:  "event1",
		Platform: PlatformWeb,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Type != TypeRegister {
		t.Errorf("expected register, got %q", msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	var payload RegisterPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != "user1" || payload.EventID != "event1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestNewMessage_NilPayload(t *testing.T) {
	msg, err := NewMessage(TypeHeartbeat, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Payload != nil {
		t.Error("expected empty payload")
	}

	// Unmarshaling an absent payload is a no-op.
	var payload RegisterPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	msg, err := NewMessage(TypeSyncError, &SyncErrorPayload{
		OperationID: "op1",
		Code:        ErrCodeValidation,
		Message:     "unrecognized operation",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeSyncError {
		t.Errorf("expected sync_error, got %q", decoded.Type)
	}

	var payload SyncErrorPayload
	if err := decoded.UnmarshalPayload(&payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Code != ErrCodeValidation {
		t.Errorf("expected validation_error, got %q", payload.Code)
	}
}
