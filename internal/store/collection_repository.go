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

// CollectionRepository defines operations for managing collections in the database
type CollectionRepository interface {
	// CreateCollection inserts a new collection
	CreateCollection(ctx context.Context, collection *Collection) error

	// GetCollection retrieves a collection by its local ID
	GetCollection(ctx context.Context, id string) (*Collection, error)

	// GetCollectionByName retrieves a collection by name, nil if not found
	GetCollectionByName(ctx context.Context, name string) (*Collection, error)

	// GetCollectionByRemoteID retrieves a collection by remote ID, nil if not found
	GetCollectionByRemoteID(ctx context.Context, remoteID string) (*Collection, error)

	// ListCollections retrieves all collections ordered by name
	ListCollections(ctx context.Context) ([]*Collection, error)

	// UpdateCollection persists domain-field changes
	UpdateCollection(ctx context.Context, collection *Collection) error

	// DeleteCollection removes a collection locally
	DeleteCollection(ctx context.Context, id string) error

	// ListDirtyCollections retrieves collections with unpushed changes,
	// oldest updated_at first
	ListDirtyCollections(ctx context.Context) ([]*Collection, error)

	// CountDirtyCollections counts collections with unpushed changes
	CountDirtyCollections(ctx context.Context) (int, error)

	// MarkCollectionDirty flags a collection as having unpushed changes
	MarkCollectionDirty(ctx context.Context, id string) error

	// MarkCollectionSynced clears the dirty flag, stamps last_synced_at and,
	// when remoteID is non-empty, attaches the remote identifier
	MarkCollectionSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error

	// UpsertRemoteCollection inserts or updates a local collection row from
	// remote state, keyed by remote ID; the resulting row is clean
	UpsertRemoteCollection(ctx context.Context, collection *Collection) error

	// UpdateLinkCount stores the cached per-collection link count
	UpdateLinkCount(ctx context.Context, id string, count int) error

	// DeleteAllCollections wipes the collections table (forced down-sync)
	DeleteAllCollections(ctx context.Context) error
}

// SQLCollectionRepository implements CollectionRepository using a SQL database
type SQLCollectionRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLCollectionRepository creates a new SQL collection repository
func NewSQLCollectionRepository(db *sql.DB, logger *loggy.Logger) *SQLCollectionRepository {
	return &SQLCollectionRepository{
		db:     db,
		logger: logger,
	}
}

var collectionColumns = []string{
	"id", "name", "description", "visibility", "remote_id", "link_count",
	"is_dirty", "last_synced_at", "created_at", "updated_at",
}

// CreateCollection inserts a new collection
func (r *SQLCollectionRepository) CreateCollection(ctx context.Context, collection *Collection) error {
	if collection.ID == "" {
		collection.ID = ulid.CollectionID()
	}
	if collection.Visibility == "" {
		collection.Visibility = VisibilityPrivate
	}

	q := squirrel.Insert("collections").
		Columns(collectionColumns...).
		Values(
			collection.ID,
			collection.Name,
			collection.Description,
			collection.Visibility,
			nullString(collection.RemoteID),
			collection.LinkCount,
			collection.IsDirty,
			collection.LastSyncedAt,
			collection.CreatedAt,
			collection.UpdatedAt,
		)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building create collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create collection query: %w", err)
	}

	return nil
}

// GetCollection retrieves a collection by its local ID
func (r *SQLCollectionRepository) GetCollection(ctx context.Context, id string) (*Collection, error) {
	collection, err := r.getOne(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, fmt.Errorf("collection not found: %s", id)
	}
	return collection, nil
}

// GetCollectionByName retrieves a collection by name, nil if not found
func (r *SQLCollectionRepository) GetCollectionByName(ctx context.Context, name string) (*Collection, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

// GetCollectionByRemoteID retrieves a collection by remote ID, nil if not found
func (r *SQLCollectionRepository) GetCollectionByRemoteID(ctx context.Context, remoteID string) (*Collection, error) {
	return r.getOne(ctx, squirrel.Eq{"remote_id": remoteID})
}

func (r *SQLCollectionRepository) getOne(ctx context.Context, where squirrel.Eq) (*Collection, error) {
	q := squirrel.Select(collectionColumns...).
		From("collections").
		Where(where).
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get collection query: %w", err)
	}

	collection, err := scanCollection(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("executing get collection query: %w", err)
	}

	return collection, nil
}

// ListCollections retrieves all collections ordered by name
func (r *SQLCollectionRepository) ListCollections(ctx context.Context) ([]*Collection, error) {
	q := squirrel.Select(collectionColumns...).
		From("collections").
		OrderBy("name ASC")

	return r.queryCollections(ctx, q)
}

// UpdateCollection persists domain-field changes
func (r *SQLCollectionRepository) UpdateCollection(ctx context.Context, collection *Collection) error {
	q := squirrel.Update("collections").
		Set("name", collection.Name).
		Set("description", collection.Description).
		Set("visibility", collection.Visibility).
		Set("remote_id", nullString(collection.RemoteID)).
		Set("link_count", collection.LinkCount).
		Set("is_dirty", collection.IsDirty).
		Set("last_synced_at", collection.LastSyncedAt).
		Set("updated_at", collection.UpdatedAt).
		Where(squirrel.Eq{"id": collection.ID})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building update collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing update collection query: %w", err)
	}

	return nil
}

// DeleteCollection removes a collection locally
func (r *SQLCollectionRepository) DeleteCollection(ctx context.Context, id string) error {
	q := squirrel.Delete("collections").Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building delete collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete collection query: %w", err)
	}

	return nil
}

// ListDirtyCollections retrieves collections with unpushed changes
func (r *SQLCollectionRepository) ListDirtyCollections(ctx context.Context) ([]*Collection, error) {
	q := squirrel.Select(collectionColumns...).
		From("collections").
		Where(squirrel.Eq{"is_dirty": true}).
		OrderBy("updated_at ASC")

	return r.queryCollections(ctx, q)
}

// CountDirtyCollections counts collections with unpushed changes
func (r *SQLCollectionRepository) CountDirtyCollections(ctx context.Context) (int, error) {
	q := squirrel.Select("COUNT(*)").
		From("collections").
		Where(squirrel.Eq{"is_dirty": true})

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count dirty collections query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("executing count dirty collections query: %w", err)
	}

	return count, nil
}

// MarkCollectionDirty flags a collection as having unpushed changes
func (r *SQLCollectionRepository) MarkCollectionDirty(ctx context.Context, id string) error {
	q := squirrel.Update("collections").
		Set("is_dirty", true).
		Set("last_synced_at", nil).
		Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building mark collection dirty query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing mark collection dirty query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking mark collection dirty result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("collection not found: %s", id)
	}

	return nil
}

// MarkCollectionSynced clears the dirty flag and stamps the sync metadata
func (r *SQLCollectionRepository) MarkCollectionSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error {
	q := squirrel.Update("collections").
		Set("is_dirty", false).
		Set("last_synced_at", syncedAt).
		Where(squirrel.Eq{"id": id})

	if remoteID != "" {
		q = q.Set("remote_id", remoteID)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building mark collection synced query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing mark collection synced query: %w", err)
	}

	return nil
}

// UpsertRemoteCollection inserts or updates a local collection from remote state
func (r *SQLCollectionRepository) UpsertRemoteCollection(ctx context.Context, collection *Collection) error {
	if collection.RemoteID == "" {
		return fmt.Errorf("upsert requires a remote id")
	}

	existing, err := r.GetCollectionByRemoteID(ctx, collection.RemoteID)
	if err != nil {
		return err
	}

	now := time.Now()
	if existing == nil {
		collection.ID = ulid.CollectionID()
		collection.IsDirty = false
		collection.LastSyncedAt = &now
		collection.CreatedAt = now
		collection.UpdatedAt = now
		return r.CreateCollection(ctx, collection)
	}

	existing.Name = collection.Name
	existing.Description = collection.Description
	existing.Visibility = collection.Visibility
	existing.IsDirty = false
	existing.LastSyncedAt = &now
	existing.UpdatedAt = now

	if err := r.UpdateCollection(ctx, existing); err != nil {
		return err
	}

	collection.ID = existing.ID
	return nil
}

// UpdateLinkCount stores the cached per-collection link count
func (r *SQLCollectionRepository) UpdateLinkCount(ctx context.Context, id string, count int) error {
	q := squirrel.Update("collections").
		Set("link_count", count).
		Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building update link count query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing update link count query: %w", err)
	}

	return nil
}

// DeleteAllCollections wipes the collections table
func (r *SQLCollectionRepository) DeleteAllCollections(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM collections"); err != nil {
		return fmt.Errorf("executing delete all collections query: %w", err)
	}
	return nil
}

// queryCollections executes a select builder and scans the resulting rows
func (r *SQLCollectionRepository) queryCollections(ctx context.Context, q squirrel.SelectBuilder) ([]*Collection, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building collections query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing collections query: %w", err)
	}
	defer rows.Close()

	var collections []*Collection
	for rows.Next() {
		collection, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		collections = append(collections, collection)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection rows: %w", err)
	}

	return collections, nil
}

func scanCollection(row rowScanner) (*Collection, error) {
	var collection Collection
	var remoteID sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&collection.ID,
		&collection.Name,
		&collection.Description,
		&collection.Visibility,
		&remoteID,
		&collection.LinkCount,
		&collection.IsDirty,
		&lastSyncedAt,
		&collection.CreatedAt,
		&collection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		collection.RemoteID = remoteID.String
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		collection.LastSyncedAt = &t
	}

	return &collection, nil
}
