package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wedding-sync-server/internal/domain"
)

type VenueRepository interface {
	Create(ctx context.Context, element *domain.VenueElement) error
	GetByID(ctx context.Context, id string) (*domain.VenueElement, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.VenueElement, error)
	Update(ctx context.Context, element *domain.VenueElement) error
	Delete(ctx context.Context, id string) error
}

type venueRepository struct {
	pool *pgxpool.Pool
}

func NewVenueRepository(pool *pgxpool.Pool) VenueRepository {
	return &venueRepository{pool: pool}
}

func (r *venueRepository) Create(ctx context.Context, element *domain.VenueElement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO venue_elements (id, event_id, kind, label, position_x, position_y, width, height, rotation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		element.ID, element.EventID, element.Kind, element.Label,
		element.PositionX, element.PositionY, element.Width, element.Height,
		element.Rotation, element.CreatedAt, element.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating venue element %s: %w", element.ID, err)
	}
	return nil
}

func (r *venueRepository) GetByID(ctx context.Context, id string) (*domain.VenueElement, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, event_id, kind, label, position_x, position_y, width, height, rotation, created_at, updated_at
		FROM venue_elements WHERE id = $1`, id)

	v, err := scanVenueElement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching venue element %s: %w", id, err)
	}
	return v, nil
}

func (r *venueRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.VenueElement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, kind, label, position_x, position_y, width, height, rotation, created_at, updated_at
		FROM venue_elements WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing venue elements for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var elements []*domain.VenueElement
	for rows.Next() {
		v, err := scanVenueElement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning venue element: %w", err)
		}
		elements = append(elements, v)
	}
	return elements, rows.Err()
}

func (r *venueRepository) Update(ctx context.Context, element *domain.VenueElement) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE venue_elements
		SET kind = $2, label = $3, position_x = $4, position_y = $5,
		    width = $6, height = $7, rotation = $8, updated_at = $9
		WHERE id = $1`,
		element.ID, element.Kind, element.Label, element.PositionX, element.PositionY,
		element.Width, element.Height, element.Rotation, element.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating venue element %s: %w", element.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *venueRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM venue_elements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting venue element %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVenueElement(row pgx.Row) (*domain.VenueElement, error) {
	var v domain.VenueElement
	err := row.Scan(&v.ID, &v.EventID, &v.Kind, &v.Label, &v.PositionX, &v.PositionY,
		&v.Width, &v.Height, &v.Rotation, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
