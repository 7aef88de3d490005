package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wedding-sync-server/internal/domain"
)

type GuestRepository interface {
	Create(ctx context.Context, guest *domain.Guest) error
	GetByID(ctx context.Context, id string) (*domain.Guest, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Guest, error)
	Update(ctx context.Context, guest *domain.Guest) error
	Delete(ctx context.Context, id string) error
}

type guestRepository struct {
	pool *pgxpool.Pool
}

func NewGuestRepository(pool *pgxpool.Pool) GuestRepository {
	return &guestRepository{pool: pool}
}

func (r *guestRepository) Create(ctx context.Context, guest *domain.Guest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guests (id, event_id, name, phone_number, rsvp_status, party_size, dietary_notes, table_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		guest.ID, guest.EventID, guest.Name, guest.PhoneNumber, guest.RSVPStatus,
		guest.PartySize, guest.DietaryNotes, guest.TableID, guest.CreatedAt, guest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating guest %s: %w", guest.ID, err)
	}
	return nil
}

func (r *guestRepository) GetByID(ctx context.Context, id string) (*domain.Guest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, phone_number, rsvp_status, party_size, dietary_notes, table_id, created_at, updated_at
		FROM guests WHERE id = $1`, id)

	g, err := scanGuest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching guest %s: %w", id, err)
	}
	return g, nil
}

func (r *guestRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Guest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, name, phone_number, rsvp_status, party_size, dietary_notes, table_id, created_at, updated_at
		FROM guests WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing guests for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var guests []*domain.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning guest: %w", err)
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

func (r *guestRepository) Update(ctx context.Context, guest *domain.Guest) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE guests
		SET name = $2, phone_number = $3, rsvp_status = $4, party_size = $5,
		    dietary_notes = $6, table_id = $7, updated_at = $8
		WHERE id = $1`,
		guest.ID, guest.Name, guest.PhoneNumber, guest.RSVPStatus,
		guest.PartySize, guest.DietaryNotes, guest.TableID, guest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating guest %s: %w", guest.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *guestRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM guests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting guest %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanGuest(row pgx.Row) (*domain.Guest, error) {
	var g domain.Guest
	err := row.Scan(&g.ID, &g.EventID, &g.Name, &g.PhoneNumber, &g.RSVPStatus,
		&g.PartySize, &g.DietaryNotes, &g.TableID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
