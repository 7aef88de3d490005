package syncclient

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"wedding-sync-server/pkg/syncclient/migrations"
)

// SQLiteStore persists the operation queue so it survives app restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the queue database at path and
// runs pending schema migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening queue db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(op *OfflineOperation) error {
	now := time.Now().UnixMilli()
	createdAt := op.CreatedAt.UnixMilli()
	if op.CreatedAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO operations (id, type, entity, entity_id, data, event_id, user_id, status, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, retry_count = excluded.retry_count,
			last_error = excluded.last_error, updated_at = excluded.updated_at`,
		op.ID, op.Type, op.Entity, op.EntityID, []byte(op.Data), op.EventID, op.UserID,
		string(op.Status), op.RetryCount, op.LastError, createdAt, now)
	if err != nil {
		return fmt.Errorf("saving operation %s: %w", op.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*OfflineOperation, error) {
	row := s.db.QueryRow(`
		SELECT id, type, entity, entity_id, data, event_id, user_id, status, retry_count, last_error, created_at, updated_at
		FROM operations WHERE id = ?`, id)

	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching operation %s: %w", id, err)
	}
	return op, nil
}

func (s *SQLiteStore) ListByStatus(statuses ...OperationStatus) ([]*OfflineOperation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id, type, entity, entity_id, data, event_id, user_id, status, retry_count, last_error, created_at, updated_at
		FROM operations WHERE status IN (%s) ORDER BY created_at ASC, id ASC`,
		strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*OfflineOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *SQLiteStore) Update(op *OfflineOperation) error {
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`
		UPDATE operations
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(op.Status), op.RetryCount, op.LastError, now, op.ID)
	if err != nil {
		return fmt.Errorf("updating operation %s: %w", op.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOperationNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting operation %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Counts() (QueueCounts, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM operations GROUP BY status`)
	if err != nil {
		return QueueCounts{}, fmt.Errorf("counting operations: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueCounts{}, err
		}
		switch OperationStatus(status) {
		case StatusPending, StatusSyncing:
			counts.Pending += n
		case StatusFailed:
			counts.Failed += n
		}
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*OfflineOperation, error) {
	var op OfflineOperation
	var data []byte
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(&op.ID, &op.Type, &op.Entity, &op.EntityID, &data, &op.EventID,
		&op.UserID, &status, &op.RetryCount, &op.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	op.Data = data
	op.Status = OperationStatus(status)
	op.CreatedAt = time.UnixMilli(createdAt)
	op.UpdatedAt = time.UnixMilli(updatedAt)
	return &op, nil
}
