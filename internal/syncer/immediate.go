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

// ErrNoToken is the message surfaced when no API credential is configured
const ErrNoToken = "No API token configured"

// ImmediateStrategy pushes every mutation to the server as it happens,
// wrapped in the retry policy, with cancellation checked before each attempt
// and before each unit of a bulk or import operation.
type ImmediateStrategy struct {
	links       store.LinkRepository
	collections store.CollectionRepository
	remote      Remote
	retry       Policy
	logger      *loggy.Logger
}

// NewImmediateStrategy creates the push-on-mutation strategy
func NewImmediateStrategy(
	links store.LinkRepository,
	collections store.CollectionRepository,
	remote Remote,
	retry Policy,
	logger *loggy.Logger,
) *ImmediateStrategy {
	return &ImmediateStrategy{
		links:       links,
		collections: collections,
		remote:      remote,
		retry:       retry,
		logger:      logger,
	}
}

// ExecuteSync executes the operation against the remote API. The credential
// check happens before any retry loop.
func (s *ImmediateStrategy) ExecuteSync(ctx context.Context, op *Operation, tok *Token) *Result {
	if err := tok.Check(); err != nil {
		return FailureResult(err.Error())
	}
	if !s.remote.HasToken() {
		return FailureResult(ErrNoToken, op.EntityID)
	}

	switch op.Kind {
	case KindLinkCreate:
		return s.syncLinkCreate(ctx, op, tok)
	case KindLinkUpdate:
		return s.syncLinkUpdate(ctx, op, tok)
	case KindLinkDelete:
		return s.syncLinkDelete(ctx, op, tok)
	case KindLinkMove:
		return s.syncLinkMove(ctx, op, tok)
	case KindCollectionCreate:
		return s.syncCollectionCreate(ctx, op, tok)
	case KindCollectionUpdate:
		return s.syncCollectionUpdate(ctx, op, tok)
	case KindCollectionDelete:
		return s.syncCollectionDelete(ctx, op, tok)
	case KindBulk:
		return s.executeBulk(ctx, op, tok)
	case KindImport:
		return s.executeImport(ctx, op, tok)
	default:
		return FailureResult(fmt.Sprintf("unsupported operation kind %s", op.Kind))
	}
}

// policyFor attaches the operation's retry hook to the strategy policy
func (s *ImmediateStrategy) policyFor(op *Operation) Policy {
	p := s.retry
	if op.OnRetry != nil {
		p.OnRetry = op.OnRetry
	}
	return p
}

func linkPayload(link *store.Link) api.LinkPayload {
	return api.LinkPayload{
		LocalID:    link.ID,
		URL:        link.URL,
		Title:      link.Title,
		Tags:       link.Tags,
		Collection: link.Collection,
	}
}

func collectionPayload(c *store.Collection) api.CollectionPayload {
	return api.CollectionPayload{
		Name:        c.Name,
		Description: c.Description,
		Visibility:  c.Visibility,
	}
}

func (s *ImmediateStrategy) syncLinkCreate(ctx context.Context, op *Operation, tok *Token) *Result {
	link, err := s.links.GetLink(ctx, op.EntityID)
	if err != nil {
		return FailureResult(fmt.Sprintf("loading link: %s", err), op.EntityID)
	}

	remoteID, err := Retry(ctx, tok, s.policyFor(op), func() (string, error) {
		return s.remote.CreateLink(ctx, linkPayload(link))
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}

	if err := s.links.MarkLinkSynced(ctx, link.ID, remoteID, time.Now()); err != nil {
		return FailureResult(fmt.Sprintf("marking link synced: %s", err), op.EntityID)
	}

	// best-effort collection assignment: the link itself is already created,
	// a resolution failure here must not fail the operation
	if link.Collection != "" {
		if err := s.assignToCollection(ctx, tok, remoteID, link.Collection); err != nil {
			s.logger.Warn("Link created but collection assignment failed",
				"link", link.ID, "collection", link.Collection, "error", err)
		}
	}

	return SuccessResult()
}

// assignToCollection resolves the target collection's remote ID and assigns
// the link to it
func (s *ImmediateStrategy) assignToCollection(ctx context.Context, tok *Token, linkRemoteID, collectionName string) error {
	col, err := s.collections.GetCollectionByName(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("resolving collection %q: %w", collectionName, err)
	}
	if col == nil || col.RemoteID == "" {
		return fmt.Errorf("collection %q not synced", collectionName)
	}

	_, err = Retry(ctx, tok, s.retry, func() (struct{}, error) {
		return struct{}{}, s.remote.AssignLinkToCollection(ctx, linkRemoteID, col.RemoteID)
	})
	return err
}

func (s *ImmediateStrategy) syncLinkUpdate(ctx context.Context, op *Operation, tok *Token) *Result {
	link, err := s.links.GetLink(ctx, op.EntityID)
	if err != nil {
		return FailureResult(fmt.Sprintf("loading link: %s", err), op.EntityID)
	}
	if link.RemoteID == "" {
		return FailureResult("cannot update: no remote id", op.EntityID)
	}

	_, err = Retry(ctx, tok, s.policyFor(op), func() (struct{}, error) {
		return struct{}{}, s.remote.UpdateLink(ctx, link.RemoteID, linkPayload(link))
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}

	if err := s.links.MarkLinkSynced(ctx, link.ID, "", time.Now()); err != nil {
		return FailureResult(fmt.Sprintf("marking link synced: %s", err), op.EntityID)
	}
	return SuccessResult()
}

func (s *ImmediateStrategy) syncLinkDelete(ctx context.Context, op *Operation, tok *Token) *Result {
	// never pushed, nothing to delete remotely
	if op.RemoteID == "" {
		return SuccessResult()
	}

	_, err := Retry(ctx, tok, s.policyFor(op), func() (struct{}, error) {
		return struct{}{}, s.remote.DeleteLink(ctx, op.RemoteID)
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}
	return SuccessResult()
}

func (s *ImmediateStrategy) syncLinkMove(ctx context.Context, op *Operation, tok *Token) *Result {
	link, err := s.links.GetLink(ctx, op.EntityID)
	if err != nil {
		return FailureResult(fmt.Sprintf("loading link: %s", err), op.EntityID)
	}
	if link.RemoteID == "" {
		return FailureResult("cannot move: no remote id", op.EntityID)
	}

	col, err := s.collections.GetCollectionByName(ctx, op.TargetCollection)
	if err != nil {
		return FailureResult(fmt.Sprintf("resolving collection %q: %s", op.TargetCollection, err), op.EntityID)
	}
	if col == nil || col.RemoteID == "" {
		return FailureResult("target collection not synced", op.EntityID)
	}

	_, err = Retry(ctx, tok, s.policyFor(op), func() (struct{}, error) {
		return struct{}{}, s.remote.AssignLinkToCollection(ctx, link.RemoteID, col.RemoteID)
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}

	if err := s.links.SetLinkCollectionClean(ctx, link.ID, op.TargetCollection); err != nil {
		return FailureResult(fmt.Sprintf("updating link collection: %s", err), op.EntityID)
	}
	if err := s.links.MarkLinkSynced(ctx, link.ID, "", time.Now()); err != nil {
		return FailureResult(fmt.Sprintf("marking link synced: %s", err), op.EntityID)
	}
	return SuccessResult()
}

func (s *ImmediateStrategy) syncCollectionCreate(ctx context.Context, op *Operation, tok *Token) *Result {
	col, err := s.collections.GetCollection(ctx, op.EntityID)
	if err != nil {
		return FailureResult(fmt.Sprintf("loading collection: %s", err), op.EntityID)
	}

	remoteID, err := Retry(ctx, tok, s.policyFor(op), func() (string, error) {
		return s.remote.CreateCollection(ctx, collectionPayload(col))
	})
	if err != nil {
		// a conflict response may mean the collection already exists
		// remotely, in which case the create is idempotent
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			remoteID, err = s.recoverConflict(ctx, tok, col.Name)
		}
		if err != nil {
			return FailureResult(err.Error(), op.EntityID)
		}
	}

	if err := s.collections.MarkCollectionSynced(ctx, col.ID, remoteID, time.Now()); err != nil {
		return FailureResult(fmt.Sprintf("marking collection synced: %s", err), op.EntityID)
	}
	return SuccessResult()
}

// recoverConflict re-queries the remote collection list looking for an
// existing collection with the same name. Remote names are assumed unique;
// the first match wins.
func (s *ImmediateStrategy) recoverConflict(ctx context.Context, tok *Token, name string) (string, error) {
	remotes, err := Retry(ctx, tok, s.retry, func() ([]api.RemoteCollection, error) {
		return s.remote.ListCollections(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("listing collections after conflict: %w", err)
	}

	for _, rc := range remotes {
		if rc.Name == name {
			s.logger.Warn("Collection already exists remotely, adopting it",
				"name", name, "remote_id", rc.ID)
			return rc.ID, nil
		}
	}

	return "", fmt.Errorf("collection %q conflicts remotely but no matching name found", name)
}

func (s *ImmediateStrategy) syncCollectionUpdate(ctx context.Context, op *Operation, tok *Token) *Result {
	col, err := s.collections.GetCollection(ctx, op.EntityID)
	if err != nil {
		return FailureResult(fmt.Sprintf("loading collection: %s", err), op.EntityID)
	}
	if col.RemoteID == "" {
		return FailureResult("cannot update: no remote id", op.EntityID)
	}

	_, err = Retry(ctx, tok, s.policyFor(op), func() (struct{}, error) {
		return struct{}{}, s.remote.UpdateCollection(ctx, col.RemoteID, collectionPayload(col))
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}

	if err := s.collections.MarkCollectionSynced(ctx, col.ID, "", time.Now()); err != nil {
		return FailureResult(fmt.Sprintf("marking collection synced: %s", err), op.EntityID)
	}
	return SuccessResult()
}

func (s *ImmediateStrategy) syncCollectionDelete(ctx context.Context, op *Operation, tok *Token) *Result {
	if op.RemoteID == "" {
		return SuccessResult()
	}

	_, err := Retry(ctx, tok, s.policyFor(op), func() (struct{}, error) {
		return struct{}{}, s.remote.DeleteCollection(ctx, op.RemoteID)
	})
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}
	return SuccessResult()
}

// executeBulk runs sub-operations in order, collecting individual failures
// without aborting the rest. Cancellation aborts immediately.
func (s *ImmediateStrategy) executeBulk(ctx context.Context, op *Operation, tok *Token) *Result {
	total := len(op.Sub)
	var failedIDs []string
	var lastErr string

	for i, sub := range op.Sub {
		if err := tok.Check(); err != nil {
			return FailureResult(err.Error(), failedIDs...)
		}

		res := s.ExecuteSync(ctx, sub, tok)
		if !res.Success() {
			if len(res.FailedIDs) > 0 {
				failedIDs = append(failedIDs, res.FailedIDs...)
			} else {
				failedIDs = append(failedIDs, sub.EntityID)
			}
			lastErr = res.Message
		}

		if op.Progress != nil {
			op.Progress(i+1, total)
		}
	}

	msg := ""
	if len(failedIDs) > 0 {
		msg = fmt.Sprintf("%d of %d operations failed: %s", len(failedIDs), total, lastErr)
	}
	return aggregateResult(total, failedIDs, msg)
}

// executeImport pushes each imported link. A failed link is rolled back to
// dirty so a later sync pass retries it, and the loop continues.
func (s *ImmediateStrategy) executeImport(ctx context.Context, op *Operation, tok *Token) *Result {
	total := len(op.LinkIDs)
	var failedIDs []string
	var lastErr string

	for i, id := range op.LinkIDs {
		if err := tok.Check(); err != nil {
			return FailureResult(err.Error(), failedIDs...)
		}

		if err := s.importOne(ctx, tok, id); err != nil {
			s.logger.Warn("Import failed for link, leaving it dirty", "link", id, "error", err)
			if mErr := s.links.MarkLinkDirty(ctx, id); mErr != nil {
				s.logger.Error("Failed to roll back imported link to dirty", "link", id, "error", mErr)
			}
			failedIDs = append(failedIDs, id)
			lastErr = err.Error()
		}

		if op.Progress != nil {
			op.Progress(i+1, total)
		}
	}

	msg := ""
	if len(failedIDs) > 0 {
		msg = fmt.Sprintf("%d of %d links failed to import: %s", len(failedIDs), total, lastErr)
	}
	return aggregateResult(total, failedIDs, msg)
}

func (s *ImmediateStrategy) importOne(ctx context.Context, tok *Token, linkID string) error {
	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		return fmt.Errorf("loading link: %w", err)
	}

	remoteID, err := Retry(ctx, tok, s.retry, func() (string, error) {
		return s.remote.CreateLink(ctx, linkPayload(link))
	})
	if err != nil {
		return err
	}

	if err := s.links.MarkLinkSynced(ctx, link.ID, remoteID, time.Now()); err != nil {
		return fmt.Errorf("marking link synced: %w", err)
	}
	return nil
}
