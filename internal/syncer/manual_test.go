package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

func TestManualStrategy(t *testing.T) {
	ctx := context.Background()
	logger := loggy.NewNoopLogger()

	t.Run("link create is queued and the row stays dirty", func(t *testing.T) {
		link := store.NewLink("https://example.com", "Example", nil, "")
		links := newFakeLinkRepo(link)
		s := NewManualStrategy(links, newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		res := s.ExecuteSync(ctx, NewLinkCreate(link.ID), NewToken())

		assert.Equal(t, StatusQueued, res.Status)
		assert.True(t, res.Success())

		got := links.get(link.ID)
		assert.True(t, got.IsDirty)
		assert.Nil(t, got.LastSyncedAt)
	})

	t.Run("move applies the collection change locally", func(t *testing.T) {
		link := store.NewLink("https://example.com", "Example", nil, "old")
		links := newFakeLinkRepo(link)
		s := NewManualStrategy(links, newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		res := s.ExecuteSync(ctx, NewLinkMove(link.ID, "new"), NewToken())

		assert.Equal(t, StatusQueued, res.Status)
		got := links.get(link.ID)
		assert.Equal(t, "new", got.Collection)
		assert.True(t, got.IsDirty)
	})

	t.Run("delete of a synced link records a tombstone", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		s := NewManualStrategy(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, logger)

		res := s.ExecuteSync(ctx, NewLinkDelete("lnk-1", "remote-lnk-1"), NewToken())

		require.Equal(t, StatusQueued, res.Status)
		pending, err := deletions.ListDeletions(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "link", pending[0].EntityType)
		assert.Equal(t, "remote-lnk-1", pending[0].RemoteID)
	})

	t.Run("delete of a never-synced link records nothing", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		s := NewManualStrategy(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, logger)

		res := s.ExecuteSync(ctx, NewLinkDelete("lnk-1", ""), NewToken())

		require.Equal(t, StatusQueued, res.Status)
		count, err := deletions.CountDeletions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("collection delete records a collection tombstone", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		s := NewManualStrategy(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, logger)

		res := s.ExecuteSync(ctx, NewCollectionDelete("col-1", "remote-col-1"), NewToken())

		require.Equal(t, StatusQueued, res.Status)
		pending, err := deletions.ListDeletions(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "collection", pending[0].EntityType)
		assert.Equal(t, "remote-col-1", pending[0].RemoteID)
	})

	t.Run("local storage failure surfaces as a hard failure", func(t *testing.T) {
		s := NewManualStrategy(newFakeLinkRepo(), newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		res := s.ExecuteSync(ctx, NewLinkCreate("lnk-missing"), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "not found")
	})

	t.Run("bulk marks each item and reports progress", func(t *testing.T) {
		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		links := newFakeLinkRepo(a, b)
		s := NewManualStrategy(links, newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		var progress [][2]int
		op := NewBulk([]*Operation{NewLinkUpdate(a.ID), NewLinkUpdate(b.ID)}, func(completed, total int) {
			progress = append(progress, [2]int{completed, total})
		})

		res := s.ExecuteSync(ctx, op, NewToken())

		assert.Equal(t, StatusQueued, res.Status)
		assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
	})

	t.Run("cancellation mid-bulk keeps completed marks", func(t *testing.T) {
		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		a.IsDirty = false
		b.IsDirty = false
		links := newFakeLinkRepo(a, b)
		s := NewManualStrategy(links, newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		tok := NewToken()
		op := NewBulk([]*Operation{NewLinkUpdate(a.ID), NewLinkUpdate(b.ID)}, func(completed, total int) {
			tok.Cancel("user aborted")
		})

		res := s.ExecuteSync(ctx, op, tok)

		require.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "user aborted")
		assert.True(t, links.get(a.ID).IsDirty, "first mark is not undone")
		assert.False(t, links.get(b.ID).IsDirty, "second item never ran")
	})

	t.Run("import marks every referenced link dirty", func(t *testing.T) {
		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		a.IsDirty = false
		b.IsDirty = false
		links := newFakeLinkRepo(a, b)
		s := NewManualStrategy(links, newFakeCollectionRepo(), newFakeDeletionRepo(), logger)

		res := s.ExecuteSync(ctx, NewImport([]string{a.ID, b.ID}, nil), NewToken())

		assert.Equal(t, StatusQueued, res.Status)
		assert.True(t, links.get(a.ID).IsDirty)
		assert.True(t, links.get(b.ID).IsDirty)
	})
}
