package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

func newReconciler(links *fakeLinkRepo, collections *fakeCollectionRepo, remote *fakeRemote) *Reconciler {
	return newReconcilerWithDeletions(links, collections, newFakeDeletionRepo(), remote)
}

func newReconcilerWithDeletions(links *fakeLinkRepo, collections *fakeCollectionRepo, deletions *fakeDeletionRepo, remote *fakeRemote) *Reconciler {
	push := NewImmediateStrategy(links, collections, remote, testPolicy(), loggy.NewNoopLogger())
	return NewReconciler(links, collections, deletions, remote, push, testPolicy(), loggy.NewNoopLogger())
}

func TestSyncUp(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes dirty collections before dirty links", func(t *testing.T) {
		col := store.NewCollection("reading", "", "")
		link := store.NewLink("https://example.com", "", nil, "reading")
		links := newFakeLinkRepo(link)
		collections := newFakeCollectionRepo(col)

		stats, err := newReconciler(links, collections, &fakeRemote{}).SyncUp(ctx, NewToken())

		require.NoError(t, err)
		assert.Equal(t, 1, stats.CollectionsPushed)
		assert.Equal(t, 1, stats.LinksPushed)
		assert.Equal(t, 0, stats.Failed)

		assert.False(t, collections.get(col.ID).IsDirty)
		assert.False(t, links.get(link.ID).IsDirty)
	})

	t.Run("per-item failures accumulate without aborting", func(t *testing.T) {
		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		links := newFakeLinkRepo(a, b)

		remote := &fakeRemote{
			createLinkFn: func(p api.LinkPayload) (string, error) {
				if p.URL == "https://a.example" {
					return "", &api.APIError{StatusCode: 400, Message: "bad request"}
				}
				return "remote-lnk-ok", nil
			},
		}

		stats, err := newReconciler(links, newFakeCollectionRepo(), remote).SyncUp(ctx, NewToken())

		require.NoError(t, err)
		assert.Equal(t, 1, stats.LinksPushed)
		assert.Equal(t, 1, stats.Failed)
		require.Len(t, stats.Errors, 1)
		assert.Contains(t, stats.Errors[0], "https://a.example")

		assert.True(t, links.get(a.ID).IsDirty)
		assert.False(t, links.get(b.ID).IsDirty)
	})
}

func TestSyncUpPendingDeletions(t *testing.T) {
	ctx := context.Background()

	t.Run("manual delete propagates to the server on the next pass", func(t *testing.T) {
		link := store.NewLink("https://example.com", "Example", nil, "")
		link.RemoteID = "remote-lnk-1"
		link.IsDirty = false
		links := newFakeLinkRepo(link)
		deletions := newFakeDeletionRepo()

		manual := NewManualStrategy(links, newFakeCollectionRepo(), deletions, loggy.NewNoopLogger())
		require.NoError(t, links.DeleteLink(ctx, link.ID))
		res := manual.ExecuteSync(ctx, NewLinkDelete(link.ID, link.RemoteID), NewToken())
		require.Equal(t, StatusQueued, res.Status)

		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) { return nil, nil },
		}
		r := newReconcilerWithDeletions(links, newFakeCollectionRepo(), deletions, remote)

		stats, err := r.SyncUp(ctx, NewToken())
		require.NoError(t, err)
		assert.Equal(t, 1, remote.deleteLinkCalls)
		assert.Equal(t, 1, stats.Deleted)

		count, err := deletions.CountDeletions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count, "tombstone cleared after the remote delete")

		// the server no longer returns the link, so a pull must not
		// resurrect it
		_, err = r.SyncDown(ctx, NewToken(), false)
		require.NoError(t, err)
		got, err := links.GetLinkByURL(ctx, "https://example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("deletes are issued before collection pushes", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		require.NoError(t, deletions.AddDeletion(ctx, "collection", "remote-col-old"))

		remote := &fakeRemote{}
		col := store.NewCollection("reading", "", "")
		r := newReconcilerWithDeletions(newFakeLinkRepo(), newFakeCollectionRepo(col), deletions, remote)

		stats, err := r.SyncUp(ctx, NewToken())
		require.NoError(t, err)
		assert.Equal(t, 1, remote.deleteCollectionCalls)
		assert.Equal(t, 1, stats.Deleted)
		assert.Equal(t, 1, stats.CollectionsPushed)
	})

	t.Run("a 404 counts as already deleted", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		require.NoError(t, deletions.AddDeletion(ctx, "link", "remote-lnk-gone"))

		remote := &fakeRemote{
			deleteLinkFn: func(remoteID string) error {
				return &api.APIError{StatusCode: 404, Message: "not found"}
			},
		}
		r := newReconcilerWithDeletions(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, remote)

		stats, err := r.SyncUp(ctx, NewToken())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Deleted)
		assert.Equal(t, 0, stats.Failed)

		count, err := deletions.CountDeletions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("other failures keep the tombstone for the next pass", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		require.NoError(t, deletions.AddDeletion(ctx, "link", "remote-lnk-1"))

		remote := &fakeRemote{
			deleteLinkFn: func(remoteID string) error {
				return &api.APIError{StatusCode: 500, Message: "server error"}
			},
		}
		r := newReconcilerWithDeletions(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, remote)

		stats, err := r.SyncUp(ctx, NewToken())
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Deleted)
		assert.Equal(t, 1, stats.Failed)
		require.Len(t, stats.Errors, 1)
		assert.Contains(t, stats.Errors[0], "remote-lnk-1")

		count, err := deletions.CountDeletions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestSyncDown(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to run over dirty local state", func(t *testing.T) {
		col := store.NewCollection("reading", "", "")
		collections := newFakeCollectionRepo(col)
		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				t.Fatal("remote must not be called on conflict")
				return nil, nil
			},
		}

		_, err := newReconciler(newFakeLinkRepo(), collections, remote).SyncDown(ctx, NewToken(), false)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.DirtyCollections)
		assert.True(t, collections.get(col.ID).IsDirty, "local state untouched")
	})

	t.Run("refuses to run over pending deletions", func(t *testing.T) {
		deletions := newFakeDeletionRepo()
		require.NoError(t, deletions.AddDeletion(ctx, "link", "remote-lnk-1"))
		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				t.Fatal("remote must not be called on conflict")
				return nil, nil
			},
		}

		r := newReconcilerWithDeletions(newFakeLinkRepo(), newFakeCollectionRepo(), deletions, remote)
		_, err := r.SyncDown(ctx, NewToken(), false)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.DirtyLinks)
	})

	t.Run("pulls remote collections and links", func(t *testing.T) {
		links := newFakeLinkRepo()
		collections := newFakeCollectionRepo()

		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				return []api.RemoteCollection{{ID: "remote-col-1", Name: "reading"}}, nil
			},
			collectionLinksFn: func(remoteID string) ([]api.RemoteLink, error) {
				return []api.RemoteLink{{ID: "remote-lnk-1", URL: "https://a.example", Title: "A"}}, nil
			},
			uncategorizedFn: func() ([]api.RemoteLink, error) {
				return []api.RemoteLink{{ID: "remote-lnk-2", URL: "https://b.example"}}, nil
			},
		}

		stats, err := newReconciler(links, collections, remote).SyncDown(ctx, NewToken(), false)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.CollectionsPulled)
		assert.Equal(t, 2, stats.LinksPulled)

		col, _ := collections.GetCollectionByRemoteID(ctx, "remote-col-1")
		require.NotNil(t, col)
		assert.False(t, col.IsDirty)
		assert.Equal(t, 1, col.LinkCount)

		a, _ := links.GetLinkByURL(ctx, "https://a.example")
		require.NotNil(t, a)
		assert.Equal(t, "reading", a.Collection)
		assert.False(t, a.IsDirty)

		b, _ := links.GetLinkByURL(ctx, "https://b.example")
		require.NotNil(t, b)
		assert.Equal(t, "", b.Collection)
	})

	t.Run("prunes synced collections deleted remotely but keeps local-only ones", func(t *testing.T) {
		synced := store.NewCollection("gone", "", "")
		synced.RemoteID = "remote-col-gone"
		synced.IsDirty = false
		localOnly := store.NewCollection("drafts", "", "")
		localOnly.IsDirty = false
		collections := newFakeCollectionRepo(synced, localOnly)

		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) { return nil, nil },
		}

		_, err := newReconciler(newFakeLinkRepo(), collections, remote).SyncDown(ctx, NewToken(), false)

		require.NoError(t, err)
		assert.Nil(t, collections.get(synced.ID), "remotely deleted collection is pruned")
		assert.NotNil(t, collections.get(localOnly.ID), "never-synced collection is preserved")
	})

	t.Run("force overwrite wipes local collections and pending deletions first", func(t *testing.T) {
		dirty := store.NewCollection("dirty", "", "")
		collections := newFakeCollectionRepo(dirty)
		deletions := newFakeDeletionRepo()
		require.NoError(t, deletions.AddDeletion(ctx, "link", "remote-lnk-1"))

		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				return []api.RemoteCollection{{ID: "remote-col-1", Name: "fresh"}}, nil
			},
		}

		r := newReconcilerWithDeletions(newFakeLinkRepo(), collections, deletions, remote)
		stats, err := r.SyncDown(ctx, NewToken(), true)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.CollectionsPulled)
		assert.Nil(t, collections.get(dirty.ID))

		fresh, _ := collections.GetCollectionByRemoteID(ctx, "remote-col-1")
		assert.NotNil(t, fresh)

		count, err := deletions.CountDeletions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestFullSync(t *testing.T) {
	ctx := context.Background()

	t.Run("reports dirty counts without resolveConflicts", func(t *testing.T) {
		link := store.NewLink("https://example.com", "", nil, "")
		col := store.NewCollection("reading", "", "")

		r := newReconciler(newFakeLinkRepo(link), newFakeCollectionRepo(col), &fakeRemote{})
		_, err := r.FullSync(ctx, NewToken(), false)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.DirtyLinks)
		assert.Equal(t, 1, conflict.DirtyCollections)
	})

	t.Run("resolveConflicts pushes then pulls", func(t *testing.T) {
		link := store.NewLink("https://example.com", "", nil, "")
		links := newFakeLinkRepo(link)

		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) { return nil, nil },
			uncategorizedFn: func() ([]api.RemoteLink, error) {
				return []api.RemoteLink{{ID: "remote-lnk-9", URL: "https://other.example"}}, nil
			},
		}

		stats, err := newReconciler(links, newFakeCollectionRepo(), remote).FullSync(ctx, NewToken(), true)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.LinksPushed)
		assert.Equal(t, 1, stats.LinksPulled)
		assert.False(t, links.get(link.ID).IsDirty)
	})

	t.Run("down-phase errors surface after the push", func(t *testing.T) {
		remote := &fakeRemote{
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				return nil, errors.New("connection refused")
			},
		}

		r := newReconciler(newFakeLinkRepo(), newFakeCollectionRepo(), remote)
		_, err := r.FullSync(ctx, NewToken(), false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync down")
	})
}
