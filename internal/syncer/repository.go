package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// Log records the outcome of one engine-level sync operation
type Log struct {
	ID           string
	SyncType     string
	EntityType   string
	EntityID     string
	Success      bool
	ErrorType    string
	ErrorMessage string
	ItemsSynced  int
	StartedAt    time.Time
	CompletedAt  time.Time
}

// NewLog starts a log entry for a sync of the given type
func NewLog(syncType, entityType, entityID string) *Log {
	return &Log{
		ID:         ulid.SyncID(),
		SyncType:   syncType,
		EntityType: entityType,
		EntityID:   entityID,
		StartedAt:  time.Now(),
	}
}

// Finish completes the log entry from a result
func (l *Log) Finish(success bool, itemsSynced int, errorType, errorMessage string) *Log {
	l.Success = success
	l.ItemsSynced = itemsSynced
	l.ErrorType = errorType
	l.ErrorMessage = errorMessage
	l.CompletedAt = time.Now()
	return l
}

// Repository persists sync logs
type Repository interface {
	// CreateLog inserts a completed log entry
	CreateLog(ctx context.Context, log *Log) error

	// ListRecentLogs returns the most recent log entries, newest first
	ListRecentLogs(ctx context.Context, limit int) ([]*Log, error)

	// LastSuccessfulSync returns the most recent successful log of the
	// given sync type, or nil if none exists
	LastSuccessfulSync(ctx context.Context, syncType string) (*Log, error)
}

// SQLRepository implements Repository using SQLite
type SQLRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLRepository creates a sync log repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{db: db, logger: logger}
}

var logColumns = []string{
	"id", "sync_type", "entity_type", "entity_id", "success",
	"error_type", "error_message", "items_synced", "started_at", "completed_at",
}

// CreateLog inserts a completed log entry
func (r *SQLRepository) CreateLog(ctx context.Context, log *Log) error {
	if log.ID == "" {
		log.ID = ulid.SyncID()
	}
	if log.CompletedAt.IsZero() {
		log.CompletedAt = time.Now()
	}

	q := squirrel.Insert("sync_logs").
		Columns(logColumns...).
		Values(
			log.ID, log.SyncType, log.EntityType, log.EntityID, log.Success,
			log.ErrorType, log.ErrorMessage, log.ItemsSynced, log.StartedAt, log.CompletedAt,
		)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}
	return nil
}

// ListRecentLogs returns the most recent log entries, newest first
func (r *SQLRepository) ListRecentLogs(ctx context.Context, limit int) ([]*Log, error) {
	if limit <= 0 {
		limit = 20
	}

	q := squirrel.Select(logColumns...).
		From("sync_logs").
		OrderBy("started_at DESC").
		Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// LastSuccessfulSync returns the most recent successful log of the given
// sync type, or nil if none exists
func (r *SQLRepository) LastSuccessfulSync(ctx context.Context, syncType string) (*Log, error) {
	q := squirrel.Select(logColumns...).
		From("sync_logs").
		Where(squirrel.Eq{"sync_type": syncType, "success": true}).
		OrderBy("completed_at DESC").
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLog(row rowScanner) (*Log, error) {
	var log Log
	var errorType, errorMessage sql.NullString

	err := row.Scan(
		&log.ID, &log.SyncType, &log.EntityType, &log.EntityID, &log.Success,
		&errorType, &errorMessage, &log.ItemsSynced, &log.StartedAt, &log.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync log: %w", err)
	}

	log.ErrorType = errorType.String
	log.ErrorMessage = errorMessage.String
	return &log, nil
}
