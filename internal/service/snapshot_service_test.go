package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/internal/repository"
)

type mockEventRepo struct {
	events map[string]*domain.Event
}

func (m *mockEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if e, ok := m.events[id]; ok {
		return e, nil
	}
	return nil, repository.ErrNotFound
}

func TestSnapshotService_BuildSnapshot(t *testing.T) {
	events := &mockEventRepo{events: map[string]*domain.Event{
		"event1": {ID: "event1", Name: "Ana & Bruno"},
	}}
	guests := newMockGuestRepo()
	guests.guests["guest1"] = &domain.Guest{ID: "guest1", EventID: "event1", Name: "Ada"}
	guests.guests["guest2"] = &domain.Guest{ID: "guest2", EventID: "event1", Name: "Grace"}
	guests.guests["other"] = &domain.Guest{ID: "other", EventID: "event2", Name: "Elsewhere"}
	tables := newMockTableRepo()
	tables.tables["table1"] = &domain.Table{ID: "table1", EventID: "event1", Name: "Mesa 1"}
	venues := newMockVenueRepo()
	venues.elements["elem1"] = &domain.VenueElement{ID: "elem1", EventID: "event1"}

	svc := NewSnapshotService(events, guests, tables, venues, zap.NewNop())

	snapshot, err := svc.BuildSnapshot(context.Background(), "event1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if snapshot.Event == nil || snapshot.Event.ID != "event1" {
		t.Errorf("expected event1 in snapshot, got %+v", snapshot.Event)
	}
	if len(snapshot.Guests) != 2 {
		t.Errorf("expected 2 guests, got %d", len(snapshot.Guests))
	}
	if len(snapshot.Tables) != 1 {
		t.Errorf("expected 1 table, got %d", len(snapshot.Tables))
	}
	if len(snapshot.VenueElements) != 1 {
		t.Errorf("expected 1 venue element, got %d", len(snapshot.VenueElements))
	}
	if snapshot.GeneratedAt.IsZero() {
		t.Error("expected generation timestamp")
	}
}

func TestSnapshotService_UnknownEvent(t *testing.T) {
	events := &mockEventRepo{events: map[string]*domain.Event{}}
	svc := NewSnapshotService(events, newMockGuestRepo(), newMockTableRepo(), newMockVenueRepo(), zap.NewNop())

	_, err := svc.BuildSnapshot(context.Background(), "ghost")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
