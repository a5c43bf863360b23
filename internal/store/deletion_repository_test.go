package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/linkmark/internal/loggy"
)

func newDeletionRepo(t *testing.T) (*SQLDeletionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLDeletionRepository(db, loggy.NewNoopLogger()), mock
}

func TestSQLDeletionRepositoryAddDeletion(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a tombstone with conflict suppression", func(t *testing.T) {
		repo, mock := newDeletionRepo(t)

		mock.ExpectExec("INSERT INTO pending_deletes .* ON CONFLICT\\(entity_type, remote_id\\) DO NOTHING").
			WithArgs(sqlmock.AnyArg(), "link", "remote-lnk-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.AddDeletion(ctx, "link", "remote-lnk-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLDeletionRepositoryListDeletions(t *testing.T) {
	ctx := context.Background()

	t.Run("returns tombstones oldest first", func(t *testing.T) {
		repo, mock := newDeletionRepo(t)

		now := time.Now()
		rows := sqlmock.NewRows(deletionColumns).
			AddRow("del-1", "collection", "remote-col-1", now.Add(-time.Hour)).
			AddRow("del-2", "link", "remote-lnk-1", now)

		mock.ExpectQuery("SELECT id, entity_type, remote_id, created_at FROM pending_deletes ORDER BY created_at ASC").
			WillReturnRows(rows)

		deletions, err := repo.ListDeletions(ctx)
		require.NoError(t, err)
		require.Len(t, deletions, 2)
		assert.Equal(t, "del-1", deletions[0].ID)
		assert.Equal(t, "collection", deletions[0].EntityType)
		assert.Equal(t, "remote-lnk-1", deletions[1].RemoteID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty table yields no tombstones", func(t *testing.T) {
		repo, mock := newDeletionRepo(t)

		mock.ExpectQuery("SELECT id, entity_type, remote_id, created_at FROM pending_deletes").
			WillReturnRows(sqlmock.NewRows(deletionColumns))

		deletions, err := repo.ListDeletions(ctx)
		require.NoError(t, err)
		assert.Empty(t, deletions)
	})
}

func TestSQLDeletionRepositoryRemoveDeletion(t *testing.T) {
	ctx := context.Background()

	repo, mock := newDeletionRepo(t)

	mock.ExpectExec("DELETE FROM pending_deletes WHERE id = ?").
		WithArgs("del-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RemoveDeletion(ctx, "del-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDeletionRepositoryCountDeletions(t *testing.T) {
	ctx := context.Background()

	repo, mock := newDeletionRepo(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM pending_deletes").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLDeletionRepositoryDeleteAllDeletions(t *testing.T) {
	ctx := context.Background()

	repo, mock := newDeletionRepo(t)

	mock.ExpectExec("DELETE FROM pending_deletes").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeleteAllDeletions(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
