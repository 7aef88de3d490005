package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wedding-sync-server/internal/domain"
	"wedding-sync-server/internal/repository"
)

// EventPublisher is the fan-out side of the intake: implemented by the
// websocket event bus, faked in tests.
type EventPublisher interface {
	PublishSyncEvent(event *domain.SyncEvent, excludeConnID string)
	PublishConflict(conflict *domain.Conflict)
}

// IntakeService is the single writer path for sync mutations. It validates
// the entity/type pair, deduplicates retried submissions by operation id,
// applies the mutation with bounded retry, resolves concurrent edits by
// last-write-wins, and publishes the resulting sync event.
type IntakeService struct {
	guests repository.GuestRepository
	tables repository.TableRepository
	venues repository.VenueRepository
	dedup  repository.DedupStore
	bus    EventPublisher
	logger *zap.Logger

	defaultMaxRetries int
	backoffBase       time.Duration
}

func NewIntakeService(
	guests repository.GuestRepository,
	tables repository.TableRepository,
	venues repository.VenueRepository,
	dedup repository.DedupStore,
	bus EventPublisher,
	defaultMaxRetries int,
	backoffBase time.Duration,
	logger *zap.Logger,
) *IntakeService {
	return &IntakeService{
		guests:            guests,
		tables:            tables,
		venues:            venues,
		dedup:             dedup,
		bus:               bus,
		logger:            logger,
		defaultMaxRetries: defaultMaxRetries,
		backoffBase:       backoffBase,
	}
}

// Submit applies one client operation. originConnID, when non-empty, is
// excluded from the sync event fan-out so the submitter does not receive
// its own mutation back.
func (s *IntakeService) Submit(ctx context.Context, op *domain.Operation, originConnID string) (*domain.OperationResult, error) {
	eventType, ok := domain.SyncEventTypeFor(op.Entity, op.Type)
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("unrecognized operation %s on entity %s", op.Type, op.Entity))
	}
	if op.ID == "" || op.EventID == "" || op.EntityID == "" {
		return nil, NewValidationError("operation id, event id and entity id are required")
	}

	// Exactly-once apply for duplicate submissions caused by client retries.
	if cached, hit, err := s.dedup.Get(ctx, op.ID); err != nil {
		s.logger.Warn("dedup lookup failed, applying anyway", zap.String("op_id", op.ID), zap.Error(err))
	} else if hit {
		s.logger.Debug("duplicate operation, returning cached result", zap.String("op_id", op.ID))
		return cached, nil
	}

	maxRetries := op.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	payload, conflict, err := s.applyWithRetry(ctx, op, maxRetries)
	if err != nil {
		return nil, err
	}

	result := &domain.OperationResult{
		OperationID: op.ID,
		EventType:   eventType,
		Entity:      payload,
		Conflict:    conflict,
		AppliedAt:   time.Now(),
	}

	if err := s.dedup.Set(ctx, op.ID, result); err != nil {
		s.logger.Warn("caching operation result failed", zap.String("op_id", op.ID), zap.Error(err))
	}

	s.bus.PublishSyncEvent(&domain.SyncEvent{
		Type:      eventType,
		EventID:   op.EventID,
		Payload:   payload,
		Timestamp: result.AppliedAt,
		UserID:    op.UserID,
	}, originConnID)

	if conflict != nil {
		s.bus.PublishConflict(conflict)
	}

	s.logger.Info("operation applied",
		zap.String("op_id", op.ID),
		zap.String("entity", string(op.Entity)),
		zap.String("type", string(op.Type)),
		zap.String("event_id", op.EventID),
		zap.Bool("conflict", conflict != nil))

	return result, nil
}

// applyWithRetry retries transient repository failures with exponential
// backoff up to maxRetries. Validation and not-found errors are terminal.
func (s *IntakeService) applyWithRetry(ctx context.Context, op *domain.Operation, maxRetries int) (json.RawMessage, *domain.Conflict, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
			s.logger.Debug("retrying operation", zap.String("op_id", op.ID), zap.Int("attempt", attempt))
		}

		payload, conflict, err := s.apply(ctx, op)
		if err == nil {
			return payload, conflict, nil
		}
		if IsTerminal(err) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, fmt.Errorf("operation %s failed after %d retries: %w", op.ID, maxRetries, lastErr)
}

func (s *IntakeService) apply(ctx context.Context, op *domain.Operation) (json.RawMessage, *domain.Conflict, error) {
	switch op.Entity {
	case domain.EntityGuest:
		return s.applyGuest(ctx, op)
	case domain.EntityRSVP:
		return s.applyRSVP(ctx, op)
	case domain.EntityTable:
		return s.applyTable(ctx, op)
	case domain.EntityVenue:
		return s.applyVenue(ctx, op)
	default:
		return nil, nil, NewValidationError(fmt.Sprintf("unrecognized entity %s", op.Entity))
	}
}

func (s *IntakeService) applyGuest(ctx context.Context, op *domain.Operation) (json.RawMessage, *domain.Conflict, error) {
	switch op.Type {
	case domain.OperationCreate:
		guest := &domain.Guest{RSVPStatus: domain.RSVPPending, PartySize: 1}
		if err := unmarshalData(op.Data, guest); err != nil {
			return nil, nil, err
		}
		guest.ID = op.EntityID
		guest.EventID = op.EventID
		now := time.Now()
		guest.CreatedAt = now
		guest.UpdatedAt = now
		if err := s.guests.Create(ctx, guest); err != nil {
			return nil, nil, err
		}
		return marshalEntity(guest)

	case domain.OperationUpdate:
		guest, err := s.guests.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, guest.UpdatedAt)
		if err := unmarshalData(op.Data, guest); err != nil {
			return nil, nil, err
		}
		guest.ID = op.EntityID
		guest.EventID = op.EventID
		guest.UpdatedAt = time.Now()
		if err := s.guests.Update(ctx, guest); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(guest)
		return payload, conflict, err

	case domain.OperationDelete:
		guest, err := s.guests.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, guest.UpdatedAt)
		if err := s.guests.Delete(ctx, op.EntityID); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(map[string]string{"id": op.EntityID})
		return payload, conflict, err
	}
	return nil, nil, NewValidationError(fmt.Sprintf("unrecognized guest operation %s", op.Type))
}

// applyRSVP is a guest-row status mutation: the entity id is the guest id
// and only RSVP fields from the payload are honored.
func (s *IntakeService) applyRSVP(ctx context.Context, op *domain.Operation) (json.RawMessage, *domain.Conflict, error) {
	guest, err := s.guests.GetByID(ctx, op.EntityID)
	if err != nil {
		return nil, nil, err
	}
	conflict := s.detectConflict(op, guest.UpdatedAt)

	var rsvp struct {
		RSVPStatus   domain.RSVPStatus `json:"rsvp_status"`
		PartySize    *int              `json:"party_size"`
		DietaryNotes *string           `json:"dietary_notes"`
	}
	if err := unmarshalData(op.Data, &rsvp); err != nil {
		return nil, nil, err
	}
	switch rsvp.RSVPStatus {
	case domain.RSVPPending, domain.RSVPAccepted, domain.RSVPDeclined:
	default:
		return nil, nil, NewValidationError(fmt.Sprintf("unrecognized rsvp status %q", rsvp.RSVPStatus))
	}

	guest.RSVPStatus = rsvp.RSVPStatus
	if rsvp.PartySize != nil {
		guest.PartySize = *rsvp.PartySize
	}
	if rsvp.DietaryNotes != nil {
		guest.DietaryNotes = *rsvp.DietaryNotes
	}
	guest.UpdatedAt = time.Now()

	if err := s.guests.Update(ctx, guest); err != nil {
		return nil, nil, err
	}
	payload, _, err := marshalEntity(guest)
	return payload, conflict, err
}

func (s *IntakeService) applyTable(ctx context.Context, op *domain.Operation) (json.RawMessage, *domain.Conflict, error) {
	switch op.Type {
	case domain.OperationCreate:
		table := &domain.Table{Shape: domain.TableShapeRound}
		if err := unmarshalData(op.Data, table); err != nil {
			return nil, nil, err
		}
		table.ID = op.EntityID
		table.EventID = op.EventID
		now := time.Now()
		table.CreatedAt = now
		table.UpdatedAt = now
		if err := s.tables.Create(ctx, table); err != nil {
			return nil, nil, err
		}
		return marshalEntity(table)

	case domain.OperationUpdate:
		table, err := s.tables.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, table.UpdatedAt)
		if err := unmarshalData(op.Data, table); err != nil {
			return nil, nil, err
		}
		table.ID = op.EntityID
		table.EventID = op.EventID
		table.UpdatedAt = time.Now()
		if err := s.tables.Update(ctx, table); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(table)
		return payload, conflict, err

	case domain.OperationDelete:
		table, err := s.tables.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, table.UpdatedAt)
		if err := s.tables.Delete(ctx, op.EntityID); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(map[string]string{"id": op.EntityID})
		return payload, conflict, err
	}
	return nil, nil, NewValidationError(fmt.Sprintf("unrecognized table operation %s", op.Type))
}

func (s *IntakeService) applyVenue(ctx context.Context, op *domain.Operation) (json.RawMessage, *domain.Conflict, error) {
	switch op.Type {
	case domain.OperationCreate:
		element := &domain.VenueElement{Kind: domain.VenueElementOther}
		if err := unmarshalData(op.Data, element); err != nil {
			return nil, nil, err
		}
		element.ID = op.EntityID
		element.EventID = op.EventID
		now := time.Now()
		element.CreatedAt = now
		element.UpdatedAt = now
		if err := s.venues.Create(ctx, element); err != nil {
			return nil, nil, err
		}
		return marshalEntity(element)

	case domain.OperationUpdate:
		element, err := s.venues.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, element.UpdatedAt)
		if err := unmarshalData(op.Data, element); err != nil {
			return nil, nil, err
		}
		element.ID = op.EntityID
		element.EventID = op.EventID
		element.UpdatedAt = time.Now()
		if err := s.venues.Update(ctx, element); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(element)
		return payload, conflict, err

	case domain.OperationDelete:
		element, err := s.venues.GetByID(ctx, op.EntityID)
		if err != nil {
			return nil, nil, err
		}
		conflict := s.detectConflict(op, element.UpdatedAt)
		if err := s.venues.Delete(ctx, op.EntityID); err != nil {
			return nil, nil, err
		}
		payload, _, err := marshalEntity(map[string]string{"id": op.EntityID})
		return payload, conflict, err
	}
	return nil, nil, NewValidationError(fmt.Sprintf("unrecognized venue operation %s", op.Type))
}

// detectConflict flags a concurrent modification: the stored row changed
// after the client took its view. The incoming write is applied regardless;
// the resolution is unconditionally last-write-wins and the notification is
// purely informational.
func (s *IntakeService) detectConflict(op *domain.Operation, storedUpdatedAt time.Time) *domain.Conflict {
	if op.Timestamp.IsZero() || !storedUpdatedAt.After(op.Timestamp) {
		return nil
	}
	return &domain.Conflict{
		ID:           uuid.New().String(),
		EventID:      op.EventID,
		Entity:       op.Entity,
		EntityID:     op.EntityID,
		WinnerUserID: op.UserID,
		WinnerAt:     op.Timestamp,
		LoserAt:      storedUpdatedAt,
		Resolution:   domain.ResolutionLastWriteWins,
		DetectedAt:   time.Now(),
	}
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewValidationError(fmt.Sprintf("malformed payload: %v", err))
	}
	return nil
}

func marshalEntity(v interface{}) (json.RawMessage, *domain.Conflict, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding applied entity: %w", err)
	}
	return raw, nil, nil
}
