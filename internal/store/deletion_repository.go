package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// Deletion is a tombstone for an entity that was deleted locally before its
// remote counterpart could be removed. The row survives until a sync pass
// issues the remote delete.
type Deletion struct {
	ID         string
	EntityType string // "link" or "collection"
	RemoteID   string
	CreatedAt  time.Time
}

// DeletionRepository persists pending remote deletions
type DeletionRepository interface {
	// AddDeletion records a tombstone; recording the same entity twice is a
	// no-op
	AddDeletion(ctx context.Context, entityType, remoteID string) error

	// ListDeletions returns all pending tombstones, oldest first
	ListDeletions(ctx context.Context) ([]*Deletion, error)

	// RemoveDeletion clears a tombstone after the remote delete succeeded
	RemoveDeletion(ctx context.Context, id string) error

	// CountDeletions counts pending tombstones
	CountDeletions(ctx context.Context) (int, error)

	// DeleteAllDeletions wipes all tombstones (forced down-sync)
	DeleteAllDeletions(ctx context.Context) error
}

// SQLDeletionRepository implements DeletionRepository using SQLite
type SQLDeletionRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLDeletionRepository creates a pending-deletion repository
func NewSQLDeletionRepository(db *sql.DB, logger *loggy.Logger) *SQLDeletionRepository {
	return &SQLDeletionRepository{db: db, logger: logger}
}

var deletionColumns = []string{"id", "entity_type", "remote_id", "created_at"}

// AddDeletion records a tombstone
func (r *SQLDeletionRepository) AddDeletion(ctx context.Context, entityType, remoteID string) error {
	q := squirrel.Insert("pending_deletes").
		Columns(deletionColumns...).
		Values(ulid.Generate(), entityType, remoteID, time.Now()).
		Suffix("ON CONFLICT(entity_type, remote_id) DO NOTHING")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building add deletion query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing add deletion query: %w", err)
	}
	return nil
}

// ListDeletions returns all pending tombstones, oldest first
func (r *SQLDeletionRepository) ListDeletions(ctx context.Context) ([]*Deletion, error) {
	q := squirrel.Select(deletionColumns...).
		From("pending_deletes").
		OrderBy("created_at ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list deletions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list deletions query: %w", err)
	}
	defer rows.Close()

	var deletions []*Deletion
	for rows.Next() {
		var d Deletion
		if err := rows.Scan(&d.ID, &d.EntityType, &d.RemoteID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning deletion row: %w", err)
		}
		deletions = append(deletions, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deletion rows: %w", err)
	}
	return deletions, nil
}

// RemoveDeletion clears a tombstone
func (r *SQLDeletionRepository) RemoveDeletion(ctx context.Context, id string) error {
	q := squirrel.Delete("pending_deletes").Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building remove deletion query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing remove deletion query: %w", err)
	}
	return nil
}

// CountDeletions counts pending tombstones
func (r *SQLDeletionRepository) CountDeletions(ctx context.Context) (int, error) {
	q := squirrel.Select("COUNT(*)").From("pending_deletes")

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count deletions query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("executing count deletions query: %w", err)
	}
	return count, nil
}

// DeleteAllDeletions wipes all tombstones
func (r *SQLDeletionRepository) DeleteAllDeletions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_deletes"); err != nil {
		return fmt.Errorf("executing delete all deletions query: %w", err)
	}
	return nil
}
