package syncer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

func newImmediate(links *fakeLinkRepo, collections *fakeCollectionRepo, remote *fakeRemote) *ImmediateStrategy {
	return NewImmediateStrategy(links, collections, remote, testPolicy(), loggy.NewNoopLogger())
}

func TestImmediateStrategy_LinkCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("fails fast without a credential", func(t *testing.T) {
		link := store.NewLink("https://example.com", "Example", nil, "")
		links := newFakeLinkRepo(link)
		remote := &fakeRemote{noToken: true}
		s := newImmediate(links, newFakeCollectionRepo(), remote)

		res := s.ExecuteSync(ctx, NewLinkCreate(link.ID), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "No API token configured")
		assert.Equal(t, 0, remote.createLinkCalls, "credential check happens before any remote call")

		got := links.get(link.ID)
		assert.True(t, got.IsDirty, "row stays dirty locally")
	})

	t.Run("marks the link synced with the remote id", func(t *testing.T) {
		link := store.NewLink("https://example.com", "Example", nil, "")
		links := newFakeLinkRepo(link)
		s := newImmediate(links, newFakeCollectionRepo(), &fakeRemote{})

		res := s.ExecuteSync(ctx, NewLinkCreate(link.ID), NewToken())

		require.Equal(t, StatusSuccess, res.Status)
		got := links.get(link.ID)
		assert.False(t, got.IsDirty)
		assert.NotNil(t, got.LastSyncedAt)
		assert.NotEmpty(t, got.RemoteID)
	})

	t.Run("collection assignment failure does not fail the create", func(t *testing.T) {
		col := store.NewCollection("reading", "", "")
		col.RemoteID = "remote-col-9"
		link := store.NewLink("https://example.com", "Example", nil, "reading")
		links := newFakeLinkRepo(link)

		remote := &fakeRemote{
			assignFn: func(string, string) error {
				return &api.APIError{StatusCode: 500, Message: "boom"}
			},
		}
		s := newImmediate(links, newFakeCollectionRepo(col), remote)

		res := s.ExecuteSync(ctx, NewLinkCreate(link.ID), NewToken())

		assert.Equal(t, StatusSuccess, res.Status)
		assert.False(t, links.get(link.ID).IsDirty)
	})
}

func TestImmediateStrategy_LinkMove(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a remote id on the link", func(t *testing.T) {
		link := store.NewLink("https://example.com", "", nil, "")
		s := newImmediate(newFakeLinkRepo(link), newFakeCollectionRepo(), &fakeRemote{})

		res := s.ExecuteSync(ctx, NewLinkMove(link.ID, "reading"), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "no remote id")
	})

	t.Run("requires the target collection to be synced", func(t *testing.T) {
		link := store.NewLink("https://example.com", "", nil, "")
		link.RemoteID = "remote-lnk-1"
		col := store.NewCollection("reading", "", "")

		s := newImmediate(newFakeLinkRepo(link), newFakeCollectionRepo(col), &fakeRemote{})

		res := s.ExecuteSync(ctx, NewLinkMove(link.ID, "reading"), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "target collection not synced")
	})

	t.Run("assigns remotely and updates the row clean", func(t *testing.T) {
		link := store.NewLink("https://example.com", "", nil, "old")
		link.RemoteID = "remote-lnk-1"
		col := store.NewCollection("reading", "", "")
		col.RemoteID = "remote-col-1"
		links := newFakeLinkRepo(link)
		remote := &fakeRemote{}

		s := newImmediate(links, newFakeCollectionRepo(col), remote)

		res := s.ExecuteSync(ctx, NewLinkMove(link.ID, "reading"), NewToken())

		require.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, 1, remote.assignCalls)
		got := links.get(link.ID)
		assert.Equal(t, "reading", got.Collection)
		assert.False(t, got.IsDirty)
	})
}

func TestImmediateStrategy_LinkDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("never-synced link deletes as a no-op", func(t *testing.T) {
		deleted := false
		remote := &fakeRemote{deleteLinkFn: func(string) error {
			deleted = true
			return nil
		}}
		s := newImmediate(newFakeLinkRepo(), newFakeCollectionRepo(), remote)

		res := s.ExecuteSync(ctx, NewLinkDelete("lnk-1", ""), NewToken())

		assert.Equal(t, StatusSuccess, res.Status)
		assert.False(t, deleted)
	})

	t.Run("synced link deletes remotely", func(t *testing.T) {
		var deletedID string
		remote := &fakeRemote{deleteLinkFn: func(remoteID string) error {
			deletedID = remoteID
			return nil
		}}
		s := newImmediate(newFakeLinkRepo(), newFakeCollectionRepo(), remote)

		res := s.ExecuteSync(ctx, NewLinkDelete("lnk-1", "remote-lnk-7"), NewToken())

		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, "remote-lnk-7", deletedID)
	})
}

func TestImmediateStrategy_CollectionCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("conflict adopts the same-named remote collection", func(t *testing.T) {
		col := store.NewCollection("reading", "", "")
		collections := newFakeCollectionRepo(col)

		remote := &fakeRemote{
			createCollectionFn: func(api.CollectionPayload) (string, error) {
				return "", &api.APIError{StatusCode: 409, Message: "already exists"}
			},
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				return []api.RemoteCollection{
					{ID: "remote-col-5", Name: "other"},
					{ID: "remote-col-7", Name: "reading"},
				}, nil
			},
		}
		s := newImmediate(newFakeLinkRepo(), collections, remote)

		res := s.ExecuteSync(ctx, NewCollectionCreate(col.ID), NewToken())

		require.Equal(t, StatusSuccess, res.Status)
		got := collections.get(col.ID)
		assert.Equal(t, "remote-col-7", got.RemoteID)
		assert.False(t, got.IsDirty)
	})

	t.Run("conflict without a matching name is a hard error", func(t *testing.T) {
		col := store.NewCollection("reading", "", "")
		collections := newFakeCollectionRepo(col)

		remote := &fakeRemote{
			createCollectionFn: func(api.CollectionPayload) (string, error) {
				return "", &api.APIError{StatusCode: 409, Message: "already exists"}
			},
			listCollectionsFn: func() ([]api.RemoteCollection, error) {
				return []api.RemoteCollection{{ID: "remote-col-5", Name: "other"}}, nil
			},
		}
		s := newImmediate(newFakeLinkRepo(), collections, remote)

		res := s.ExecuteSync(ctx, NewCollectionCreate(col.ID), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "no matching name")
		assert.True(t, collections.get(col.ID).IsDirty)
	})
}

func TestImmediateStrategy_Bulk(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeLinkRepo, *fakeCollectionRepo, []*Operation) {
		col := store.NewCollection("reading", "", "")
		col.RemoteID = "remote-col-1"

		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		a.RemoteID = "remote-lnk-1"
		b.RemoteID = "remote-lnk-2"

		links := newFakeLinkRepo(a, b)
		ops := []*Operation{
			NewLinkMove(a.ID, "reading"),
			NewLinkMove(b.ID, "reading"),
			NewLinkMove("lnk-missing", "reading"),
		}
		return links, newFakeCollectionRepo(col), ops
	}

	t.Run("one missing link yields a partial failure", func(t *testing.T) {
		links, collections, ops := setup()
		s := newImmediate(links, collections, &fakeRemote{})

		res := s.ExecuteSync(ctx, NewBulk(ops, nil), NewToken())

		require.Equal(t, StatusPartialFailure, res.Status)
		assert.Equal(t, []string{"lnk-missing"}, res.FailedIDs)

		// the two valid links were moved
		assert.Equal(t, "reading", links.get(ops[0].EntityID).Collection)
		assert.Equal(t, "reading", links.get(ops[1].EntityID).Collection)
	})

	t.Run("all failures yield a complete failure", func(t *testing.T) {
		links, collections, ops := setup()
		remote := &fakeRemote{assignFn: func(string, string) error {
			return &api.APIError{StatusCode: 400, Message: "bad request"}
		}}
		s := newImmediate(links, collections, remote)

		res := s.ExecuteSync(ctx, NewBulk(ops, nil), NewToken())

		assert.Equal(t, StatusFailure, res.Status)
		assert.Len(t, res.FailedIDs, 3)
	})

	t.Run("no failures yield success with full progress", func(t *testing.T) {
		links, collections, _ := setup()
		a, _ := links.GetLinkByURL(ctx, "https://a.example")
		b, _ := links.GetLinkByURL(ctx, "https://b.example")

		var progress [][2]int
		op := NewBulk([]*Operation{
			NewLinkMove(a.ID, "reading"),
			NewLinkMove(b.ID, "reading"),
		}, func(completed, total int) {
			progress = append(progress, [2]int{completed, total})
		})

		s := newImmediate(links, collections, &fakeRemote{})
		res := s.ExecuteSync(ctx, op, NewToken())

		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
	})

	t.Run("cancellation aborts remaining sub-operations", func(t *testing.T) {
		links, collections, ops := setup()
		tok := NewToken()
		executed := 0
		remote := &fakeRemote{assignFn: func(string, string) error {
			executed++
			tok.Cancel("user aborted")
			return nil
		}}
		s := newImmediate(links, collections, remote)

		res := s.ExecuteSync(ctx, NewBulk(ops, nil), tok)

		assert.Equal(t, StatusFailure, res.Status)
		assert.Contains(t, res.Message, "user aborted")
		assert.Equal(t, 1, executed)
	})
}

func TestImmediateStrategy_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("failed links roll back to dirty while the loop continues", func(t *testing.T) {
		a := store.NewLink("https://a.example", "", nil, "")
		b := store.NewLink("https://b.example", "", nil, "")
		c := store.NewLink("https://c.example", "", nil, "")
		links := newFakeLinkRepo(a, b, c)

		remote := &fakeRemote{
			createLinkFn: func(p api.LinkPayload) (string, error) {
				if p.URL == "https://b.example" {
					return "", &api.APIError{StatusCode: 400, Message: "bad request"}
				}
				return "remote-" + p.URL, nil
			},
		}
		s := newImmediate(links, newFakeCollectionRepo(), remote)

		var progress []int
		op := NewImport([]string{a.ID, b.ID, c.ID}, func(completed, total int) {
			progress = append(progress, completed)
		})

		res := s.ExecuteSync(ctx, op, NewToken())

		require.Equal(t, StatusPartialFailure, res.Status)
		assert.Equal(t, []string{b.ID}, res.FailedIDs)
		assert.Equal(t, []int{1, 2, 3}, progress)

		assert.False(t, links.get(a.ID).IsDirty)
		assert.True(t, links.get(b.ID).IsDirty, "failed import stays dirty for the next pass")
		assert.False(t, links.get(c.ID).IsDirty)
	})
}

func TestAggregateResult(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		failed int
		want   Status
	}{
		{"none failed", 5, 0, StatusSuccess},
		{"some failed", 5, 2, StatusPartialFailure},
		{"all failed", 5, 5, StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for i := 0; i < tt.failed; i++ {
				ids = append(ids, fmt.Sprintf("lnk-%d", i))
			}
			res := aggregateResult(tt.total, ids, "msg")
			assert.Equal(t, tt.want, res.Status)
			assert.Len(t, res.FailedIDs, tt.failed)
		})
	}
}
