package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/internal/repository"
)

// SnapshotService assembles the full current state of one event from the
// repositories. Snapshots are the reconciliation mechanism for clients that
// were offline: there is no durable event log to replay, so a reconnecting
// client discards its cache and adopts the snapshot as ground truth.
type SnapshotService struct {
	events repository.EventRepository
	guests repository.GuestRepository
	tables repository.TableRepository
	venues repository.VenueRepository
	logger *zap.Logger
}

func NewSnapshotService(
	events repository.EventRepository,
	guests repository.GuestRepository,
	tables repository.TableRepository,
	venues repository.VenueRepository,
	logger *zap.Logger,
) *SnapshotService {
	return &SnapshotService{
		events: events,
		guests: guests,
		tables: tables,
		venues: venues,
		logger: logger,
	}
}

func (s *SnapshotService) BuildSnapshot(ctx context.Context, eventID string) (*domain.SyncSnapshot, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}

	guests, err := s.guests.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading guests: %w", err)
	}

	tables, err := s.tables.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading tables: %w", err)
	}

	elements, err := s.venues.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading venue elements: %w", err)
	}

	s.logger.Debug("snapshot built",
		zap.String("event_id", eventID),
		zap.Int("guests", len(guests)),
		zap.Int("tables", len(tables)),
		zap.Int("venue_elements", len(elements)))

	return &domain.SyncSnapshot{
		Event:         event,
		Guests:        guests,
		Tables:        tables,
		VenueElements: elements,
		GeneratedAt:   time.Now(),
	}, nil
}
