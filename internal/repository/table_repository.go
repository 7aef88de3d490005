package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wedding-sync-server/internal/domain"
)

type TableRepository interface {
	Create(ctx context.Context, table *domain.Table) error
	GetByID(ctx context.Context, id string) (*domain.Table, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Table, error)
	Update(ctx context.Context, table *domain.Table) error
	Delete(ctx context.Context, id string) error
}

type tableRepository struct {
	pool *pgxpool.Pool
}

func NewTableRepository(pool *pgxpool.Pool) TableRepository {
	return &tableRepository{pool: pool}
}

func (r *tableRepository) Create(ctx context.Context, table *domain.Table) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tables (id, event_id, name, capacity, shape, position_x, position_y, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		table.ID, table.EventID, table.Name, table.Capacity, table.Shape,
		table.PositionX, table.PositionY, table.CreatedAt, table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", table.ID, err)
	}
	return nil
}

func (r *tableRepository) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, capacity, shape, position_x, position_y, created_at, updated_at
		FROM tables WHERE id = $1`, id)

	t, err := scanTable(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching table %s: %w", id, err)
	}
	return t, nil
}

func (r *tableRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Table, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, name, capacity, shape, position_x, position_y, created_at, updated_at
		FROM tables WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing tables for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var tables []*domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *tableRepository) Update(ctx context.Context, table *domain.Table) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tables
		SET name = $2, capacity = $3, shape = $4, position_x = $5, position_y = $6, updated_at = $7
		WHERE id = $1`,
		table.ID, table.Name, table.Capacity, table.Shape,
		table.PositionX, table.PositionY, table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating table %s: %w", table.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tableRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting table %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTable(row pgx.Row) (*domain.Table, error) {
	var t domain.Table
	err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.Capacity, &t.Shape,
		&t.PositionX, &t.PositionY, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
