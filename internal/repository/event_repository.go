package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wedding-sync-server/internal/domain"
)

type EventRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, couple_a, couple_b, date, venue_name, created_at, updated_at
		FROM events WHERE id = $1`, id)

	var e domain.Event
	err := row.Scan(&e.ID, &e.Name, &e.CoupleA, &e.CoupleB, &e.Date, &e.VenueName, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching event %s: %w", id, err)
	}
	return &e, nil
}
