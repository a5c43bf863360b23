package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// LinkRepository defines operations for managing links in the database
type LinkRepository interface {
	// CreateLink inserts a new link
	CreateLink(ctx context.Context, link *Link) error

	// GetLink retrieves a link by its local ID
	GetLink(ctx context.Context, id string) (*Link, error)

	// GetLinkByURL retrieves a link by URL
	GetLinkByURL(ctx context.Context, url string) (*Link, error)

	// ListLinks retrieves links, optionally filtered by collection name
	ListLinks(ctx context.Context, collection string, limit, offset int) ([]*Link, error)

	// UpdateLink persists domain-field changes; the caller is expected to
	// have called MarkUpdated so the dirty flag travels in the same write
	UpdateLink(ctx context.Context, link *Link) error

	// DeleteLink removes a link locally
	DeleteLink(ctx context.Context, id string) error

	// ListDirtyLinks retrieves links with unpushed local changes, oldest first
	ListDirtyLinks(ctx context.Context) ([]*Link, error)

	// CountDirtyLinks counts links with unpushed local changes
	CountDirtyLinks(ctx context.Context) (int, error)

	// MarkLinkDirty flags a link as having unpushed changes and clears its
	// last-synced timestamp
	MarkLinkDirty(ctx context.Context, id string) error

	// MarkLinkSynced clears the dirty flag, stamps last_synced_at and, when
	// remoteID is non-empty, attaches the remote identifier
	MarkLinkSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error

	// UpdateLinkCollection moves a link to another collection locally,
	// marking it dirty in the same write
	UpdateLinkCollection(ctx context.Context, id, collection string) error

	// SetLinkCollectionClean rewrites a link's collection assignment from
	// remote state without dirtying the row (used by down-sync)
	SetLinkCollectionClean(ctx context.Context, id, collection string) error

	// DeleteAllTags wipes the tags table (forced down-sync)
	DeleteAllTags(ctx context.Context) error
}

// SQLLinkRepository implements LinkRepository using a SQL database
type SQLLinkRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLLinkRepository creates a new SQL link repository
func NewSQLLinkRepository(db *sql.DB, logger *loggy.Logger) *SQLLinkRepository {
	return &SQLLinkRepository{
		db:     db,
		logger: logger,
	}
}

var linkColumns = []string{
	"id", "url", "title", "tags", "collection", "remote_id",
	"is_dirty", "last_synced_at", "created_at", "updated_at",
}

// CreateLink inserts a new link
func (r *SQLLinkRepository) CreateLink(ctx context.Context, link *Link) error {
	if link.ID == "" {
		link.ID = ulid.LinkID()
	}

	tagsJSON, err := json.Marshal(link.Tags)
	if err != nil {
		return fmt.Errorf("marshaling link tags: %w", err)
	}

	q := squirrel.Insert("links").
		Columns(linkColumns...).
		Values(
			link.ID,
			link.URL,
			link.Title,
			string(tagsJSON),
			link.Collection,
			nullString(link.RemoteID),
			link.IsDirty,
			link.LastSyncedAt,
			link.CreatedAt,
			link.UpdatedAt,
		)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building create link query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create link query: %w", err)
	}

	if err := r.ensureTags(ctx, link.Tags); err != nil {
		// Tag bookkeeping is best-effort; the link row is authoritative
		r.logger.Warn("Failed to update tag table", "error", err)
	}

	return nil
}

// GetLink retrieves a link by its local ID
func (r *SQLLinkRepository) GetLink(ctx context.Context, id string) (*Link, error) {
	q := squirrel.Select(linkColumns...).
		From("links").
		Where(squirrel.Eq{"id": id}).
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get link query: %w", err)
	}

	link, err := scanLink(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("link not found: %s", id)
		}
		return nil, fmt.Errorf("executing get link query: %w", err)
	}

	return link, nil
}

// GetLinkByURL retrieves a link by URL
func (r *SQLLinkRepository) GetLinkByURL(ctx context.Context, url string) (*Link, error) {
	q := squirrel.Select(linkColumns...).
		From("links").
		Where(squirrel.Eq{"url": url}).
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get link by url query: %w", err)
	}

	link, err := scanLink(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("executing get link by url query: %w", err)
	}

	return link, nil
}

// ListLinks retrieves links, optionally filtered by collection name
func (r *SQLLinkRepository) ListLinks(ctx context.Context, collection string, limit, offset int) ([]*Link, error) {
	q := squirrel.Select(linkColumns...).
		From("links").
		OrderBy("updated_at DESC")

	if collection != "" {
		q = q.Where(squirrel.Eq{"collection": collection})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	return r.queryLinks(ctx, q)
}

// UpdateLink persists domain-field changes
func (r *SQLLinkRepository) UpdateLink(ctx context.Context, link *Link) error {
	tagsJSON, err := json.Marshal(link.Tags)
	if err != nil {
		return fmt.Errorf("marshaling link tags: %w", err)
	}

	q := squirrel.Update("links").
		Set("url", link.URL).
		Set("title", link.Title).
		Set("tags", string(tagsJSON)).
		Set("collection", link.Collection).
		Set("remote_id", nullString(link.RemoteID)).
		Set("is_dirty", link.IsDirty).
		Set("last_synced_at", link.LastSyncedAt).
		Set("updated_at", link.UpdatedAt).
		Where(squirrel.Eq{"id": link.ID})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building update link query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing update link query: %w", err)
	}

	if err := r.ensureTags(ctx, link.Tags); err != nil {
		r.logger.Warn("Failed to update tag table", "error", err)
	}

	return nil
}

// DeleteLink removes a link locally
func (r *SQLLinkRepository) DeleteLink(ctx context.Context, id string) error {
	q := squirrel.Delete("links").Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building delete link query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete link query: %w", err)
	}

	return nil
}

// ListDirtyLinks retrieves links with unpushed local changes, oldest first
func (r *SQLLinkRepository) ListDirtyLinks(ctx context.Context) ([]*Link, error) {
	q := squirrel.Select(linkColumns...).
		From("links").
		Where(squirrel.Eq{"is_dirty": true}).
		OrderBy("updated_at ASC")

	return r.queryLinks(ctx, q)
}

// CountDirtyLinks counts links with unpushed local changes
func (r *SQLLinkRepository) CountDirtyLinks(ctx context.Context) (int, error) {
	q := squirrel.Select("COUNT(*)").
		From("links").
		Where(squirrel.Eq{"is_dirty": true})

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count dirty links query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("executing count dirty links query: %w", err)
	}

	return count, nil
}

// MarkLinkDirty flags a link as having unpushed changes
func (r *SQLLinkRepository) MarkLinkDirty(ctx context.Context, id string) error {
	q := squirrel.Update("links").
		Set("is_dirty", true).
		Set("last_synced_at", nil).
		Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building mark link dirty query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing mark link dirty query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking mark link dirty result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("link not found: %s", id)
	}

	return nil
}

// MarkLinkSynced clears the dirty flag and stamps the sync metadata
func (r *SQLLinkRepository) MarkLinkSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error {
	q := squirrel.Update("links").
		Set("is_dirty", false).
		Set("last_synced_at", syncedAt).
		Where(squirrel.Eq{"id": id})

	if remoteID != "" {
		q = q.Set("remote_id", remoteID)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building mark link synced query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing mark link synced query: %w", err)
	}

	return nil
}

// UpdateLinkCollection moves a link to another collection locally
func (r *SQLLinkRepository) UpdateLinkCollection(ctx context.Context, id, collection string) error {
	q := squirrel.Update("links").
		Set("collection", collection).
		Set("is_dirty", true).
		Set("last_synced_at", nil).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building update link collection query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("executing update link collection query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update link collection result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("link not found: %s", id)
	}

	return nil
}

// SetLinkCollectionClean rewrites a link's collection assignment from remote
// state without dirtying the row
func (r *SQLLinkRepository) SetLinkCollectionClean(ctx context.Context, id, collection string) error {
	q := squirrel.Update("links").
		Set("collection", collection).
		Where(squirrel.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building set link collection query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing set link collection query: %w", err)
	}

	return nil
}

// DeleteAllTags wipes the tags table
func (r *SQLLinkRepository) DeleteAllTags(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM tags"); err != nil {
		return fmt.Errorf("executing delete all tags query: %w", err)
	}
	return nil
}

// ensureTags inserts any unseen tag names into the tags table
func (r *SQLLinkRepository) ensureTags(ctx context.Context, tags []string) error {
	for _, name := range tags {
		if name == "" {
			continue
		}
		q := squirrel.Insert("tags").
			Columns("id", "name", "created_at").
			Values(ulid.Generate(), name, time.Now()).
			Suffix("ON CONFLICT(name) DO NOTHING")

		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("building ensure tag query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("executing ensure tag query: %w", err)
		}
	}
	return nil
}

// queryLinks executes a select builder and scans the resulting rows
func (r *SQLLinkRepository) queryLinks(ctx context.Context, q squirrel.SelectBuilder) ([]*Link, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building links query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing links query: %w", err)
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link rows: %w", err)
	}

	return links, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row rowScanner) (*Link, error) {
	var link Link
	var tagsJSON string
	var remoteID sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&link.ID,
		&link.URL,
		&link.Title,
		&tagsJSON,
		&link.Collection,
		&remoteID,
		&link.IsDirty,
		&lastSyncedAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &link.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling link tags: %w", err)
		}
	}
	if remoteID.Valid {
		link.RemoteID = remoteID.String
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		link.LastSyncedAt = &t
	}

	return &link, nil
}

// nullString maps an empty string to a SQL NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
