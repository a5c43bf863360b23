package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

// ConflictError signals that a down-sync or full-sync would overwrite
// unpushed local changes
type ConflictError struct {
	DirtyLinks       int
	DirtyCollections int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("local changes would be overwritten: %d dirty links, %d dirty collections (use --force to overwrite)",
		e.DirtyLinks, e.DirtyCollections)
}

// Stats summarizes one reconciliation pass
type Stats struct {
	CollectionsPushed int
	LinksPushed       int
	CollectionsPulled int
	LinksPulled       int
	Deleted           int
	Failed            int
	Errors            []string
}

// Merge folds another pass into this one
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.CollectionsPushed += other.CollectionsPushed
	s.LinksPushed += other.LinksPushed
	s.CollectionsPulled += other.CollectionsPulled
	s.LinksPulled += other.LinksPulled
	s.Deleted += other.Deleted
	s.Failed += other.Failed
	s.Errors = append(s.Errors, other.Errors...)
}

// Reconciler drives the bidirectional sync-up / sync-down / full-sync
// cycle. Pushes always go through the immediate strategy regardless of the
// configured mode.
type Reconciler struct {
	links       store.LinkRepository
	collections store.CollectionRepository
	deletions   store.DeletionRepository
	remote      Remote
	push        Strategy
	retry       Policy
	logger      *loggy.Logger
}

// NewReconciler creates a reconciler over the given collaborators
func NewReconciler(
	links store.LinkRepository,
	collections store.CollectionRepository,
	deletions store.DeletionRepository,
	remote Remote,
	push Strategy,
	retry Policy,
	logger *loggy.Logger,
) *Reconciler {
	return &Reconciler{
		links:       links,
		collections: collections,
		deletions:   deletions,
		remote:      remote,
		push:        push,
		retry:       retry,
		logger:      logger,
	}
}

// dirtyCounts returns the number of unpushed local changes, pending
// deletions included
func (r *Reconciler) dirtyCounts(ctx context.Context) (links, collections int, err error) {
	links, err = r.links.CountDirtyLinks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("counting dirty links: %w", err)
	}
	collections, err = r.collections.CountDirtyCollections(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("counting dirty collections: %w", err)
	}

	pending, err := r.deletions.ListDeletions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing pending deletions: %w", err)
	}
	for _, d := range pending {
		if d.EntityType == "collection" {
			collections++
		} else {
			links++
		}
	}
	return links, collections, nil
}

// SyncUp issues pending remote deletions first, then pushes dirty
// collections (oldest updated_at first), then dirty links: never-pushed
// links as creates, already-remote links as updates. Per-item failures are
// accumulated without aborting the pass.
func (r *Reconciler) SyncUp(ctx context.Context, tok *Token) (*Stats, error) {
	stats := &Stats{}

	if err := r.flushPendingDeletes(ctx, tok, stats); err != nil {
		return stats, err
	}

	dirtyCollections, err := r.collections.ListDirtyCollections(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing dirty collections: %w", err)
	}

	for _, col := range dirtyCollections {
		if err := tok.Check(); err != nil {
			return stats, err
		}

		var op *Operation
		if col.RemoteID == "" {
			op = NewCollectionCreate(col.ID)
		} else {
			op = NewCollectionUpdate(col.ID)
		}

		res := r.push.ExecuteSync(ctx, op, tok)
		if res.Success() {
			stats.CollectionsPushed++
		} else {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("collection %s: %s", col.Name, res.Message))
			r.logger.Warn("Failed to push collection", "collection", col.ID, "error", res.Message)
		}
	}

	dirtyLinks, err := r.links.ListDirtyLinks(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing dirty links: %w", err)
	}

	// creates first, then updates for links the server already knows
	for _, pass := range []bool{true, false} {
		for _, link := range dirtyLinks {
			isNew := link.RemoteID == ""
			if isNew != pass {
				continue
			}
			if err := tok.Check(); err != nil {
				return stats, err
			}

			var op *Operation
			if isNew {
				op = NewLinkCreate(link.ID)
			} else {
				op = NewLinkUpdate(link.ID)
			}

			res := r.push.ExecuteSync(ctx, op, tok)
			if res.Success() {
				stats.LinksPushed++
			} else {
				stats.Failed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("link %s: %s", link.URL, res.Message))
				r.logger.Warn("Failed to push link", "link", link.ID, "error", res.Message)
			}
		}
	}

	return stats, nil
}

// flushPendingDeletes issues the remote deletes recorded as tombstones. An
// entity already gone remotely (404) counts as deleted; other failures keep
// the tombstone for the next pass.
func (r *Reconciler) flushPendingDeletes(ctx context.Context, tok *Token, stats *Stats) error {
	pending, err := r.deletions.ListDeletions(ctx)
	if err != nil {
		return fmt.Errorf("listing pending deletions: %w", err)
	}

	for _, d := range pending {
		if err := tok.Check(); err != nil {
			return err
		}

		_, err := Retry(ctx, tok, r.retry, func() (struct{}, error) {
			if d.EntityType == "collection" {
				return struct{}{}, r.remote.DeleteCollection(ctx, d.RemoteID)
			}
			return struct{}{}, r.remote.DeleteLink(ctx, d.RemoteID)
		})

		if err != nil {
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
				stats.Failed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("deleting remote %s %s: %s", d.EntityType, d.RemoteID, err))
				continue
			}
			// already gone remotely
		}

		if err := r.deletions.RemoveDeletion(ctx, d.ID); err != nil {
			return fmt.Errorf("clearing tombstone %s: %w", d.ID, err)
		}
		stats.Deleted++
	}
	return nil
}

// SyncDown pulls remote state into the local store. It refuses to run if
// unpushed local changes exist unless forceOverwrite is set, in which case
// all local collections and tags are wiped first. Local-only collections
// that were never synced are preserved in normal mode.
func (r *Reconciler) SyncDown(ctx context.Context, tok *Token, forceOverwrite bool) (*Stats, error) {
	stats := &Stats{}

	if !forceOverwrite {
		dirtyLinks, dirtyCollections, err := r.dirtyCounts(ctx)
		if err != nil {
			return stats, err
		}
		if dirtyLinks > 0 || dirtyCollections > 0 {
			return stats, &ConflictError{DirtyLinks: dirtyLinks, DirtyCollections: dirtyCollections}
		}
	}

	remoteCollections, err := Retry(ctx, tok, r.retry, func() ([]api.RemoteCollection, error) {
		return r.remote.ListCollections(ctx)
	})
	if err != nil {
		return stats, fmt.Errorf("fetching remote collections: %w", err)
	}

	if forceOverwrite {
		if err := r.collections.DeleteAllCollections(ctx); err != nil {
			return stats, fmt.Errorf("wiping local collections: %w", err)
		}
		if err := r.links.DeleteAllTags(ctx); err != nil {
			return stats, fmt.Errorf("wiping local tags: %w", err)
		}
		// the server is the source of truth now, pending deletions are moot
		if err := r.deletions.DeleteAllDeletions(ctx); err != nil {
			return stats, fmt.Errorf("wiping pending deletions: %w", err)
		}
	} else {
		if err := r.pruneDeletedCollections(ctx, remoteCollections, stats); err != nil {
			return stats, err
		}
	}

	now := time.Now()
	for _, rc := range remoteCollections {
		if err := tok.Check(); err != nil {
			return stats, err
		}

		col := &store.Collection{
			Name:         rc.Name,
			Description:  rc.Description,
			Visibility:   rc.Visibility,
			RemoteID:     rc.ID,
			LinkCount:    rc.LinkCount,
			LastSyncedAt: &now,
		}
		if col.Visibility == "" {
			col.Visibility = store.VisibilityPrivate
		}
		if err := r.collections.UpsertRemoteCollection(ctx, col); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("collection %s: %s", rc.Name, err))
			continue
		}
		stats.CollectionsPulled++

		pulled, err := r.pullCollectionLinks(ctx, tok, col)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("collection %s links: %s", rc.Name, err))
			continue
		}
		stats.LinksPulled += pulled

		if err := r.collections.UpdateLinkCount(ctx, col.ID, pulled); err != nil {
			r.logger.Warn("Failed to update link count", "collection", col.ID, "error", err)
		}
	}

	pulled, err := r.pullUncategorizedLinks(ctx, tok)
	if err != nil {
		stats.Failed++
		stats.Errors = append(stats.Errors, fmt.Sprintf("uncategorized links: %s", err))
	}
	stats.LinksPulled += pulled

	return stats, nil
}

// pruneDeletedCollections removes local collections whose remote
// counterpart no longer exists. Never-synced local collections are kept.
func (r *Reconciler) pruneDeletedCollections(ctx context.Context, remotes []api.RemoteCollection, stats *Stats) error {
	locals, err := r.collections.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing local collections: %w", err)
	}

	remoteIDs := make(map[string]bool, len(remotes))
	for _, rc := range remotes {
		remoteIDs[rc.ID] = true
	}

	for _, col := range locals {
		if col.RemoteID == "" || remoteIDs[col.RemoteID] {
			continue
		}
		if err := r.collections.DeleteCollection(ctx, col.ID); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("deleting collection %s: %s", col.Name, err))
			continue
		}
		r.logger.Info("Removed local collection deleted remotely", "collection", col.Name)
	}
	return nil
}

// pullCollectionLinks fetches a collection's remote links and reconciles
// local link rows and their collection assignment
func (r *Reconciler) pullCollectionLinks(ctx context.Context, tok *Token, col *store.Collection) (int, error) {
	remoteLinks, err := Retry(ctx, tok, r.retry, func() ([]api.RemoteLink, error) {
		return r.remote.GetCollectionLinks(ctx, col.RemoteID)
	})
	if err != nil {
		return 0, err
	}
	return len(remoteLinks), r.adoptRemoteLinks(ctx, remoteLinks, col.Name)
}

// pullUncategorizedLinks reconciles remote links that belong to no
// collection
func (r *Reconciler) pullUncategorizedLinks(ctx context.Context, tok *Token) (int, error) {
	remoteLinks, err := Retry(ctx, tok, r.retry, func() ([]api.RemoteLink, error) {
		return r.remote.GetUncategorizedLinks(ctx)
	})
	if err != nil {
		return 0, err
	}
	return len(remoteLinks), r.adoptRemoteLinks(ctx, remoteLinks, "")
}

// adoptRemoteLinks inserts or updates local rows for remote links, matched
// by URL, leaving them clean
func (r *Reconciler) adoptRemoteLinks(ctx context.Context, remoteLinks []api.RemoteLink, collectionName string) error {
	now := time.Now()
	for _, rl := range remoteLinks {
		local, err := r.links.GetLinkByURL(ctx, rl.URL)
		if err != nil {
			return fmt.Errorf("looking up link %s: %w", rl.URL, err)
		}

		if local == nil {
			link := store.NewLink(rl.URL, rl.Title, rl.Tags, collectionName)
			link.RemoteID = rl.ID
			link.IsDirty = false
			link.LastSyncedAt = &now
			if err := r.links.CreateLink(ctx, link); err != nil {
				return fmt.Errorf("inserting link %s: %w", rl.URL, err)
			}
			continue
		}

		if local.Collection != collectionName {
			if err := r.links.SetLinkCollectionClean(ctx, local.ID, collectionName); err != nil {
				return fmt.Errorf("reassigning link %s: %w", rl.URL, err)
			}
		}
		if err := r.links.MarkLinkSynced(ctx, local.ID, rl.ID, now); err != nil {
			return fmt.Errorf("marking link %s synced: %w", rl.URL, err)
		}
	}
	return nil
}

// FullSync runs SyncUp then SyncDown in sequence. Without resolveConflicts
// it refuses to start if any unpushed local changes exist; with it, the
// down phase force-overwrites local state after the push.
func (r *Reconciler) FullSync(ctx context.Context, tok *Token, resolveConflicts bool) (*Stats, error) {
	if !resolveConflicts {
		dirtyLinks, dirtyCollections, err := r.dirtyCounts(ctx)
		if err != nil {
			return &Stats{}, err
		}
		if dirtyLinks > 0 || dirtyCollections > 0 {
			return &Stats{}, &ConflictError{DirtyLinks: dirtyLinks, DirtyCollections: dirtyCollections}
		}
	}

	stats, err := r.SyncUp(ctx, tok)
	if err != nil {
		return stats, fmt.Errorf("sync up: %w", err)
	}

	down, err := r.SyncDown(ctx, tok, resolveConflicts)
	stats.Merge(down)
	if err != nil {
		return stats, fmt.Errorf("sync down: %w", err)
	}

	return stats, nil
}
