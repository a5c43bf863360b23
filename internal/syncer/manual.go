package syncer

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

// ManualStrategy defers all remote work: it marks the affected entities
// dirty (or records a deletion tombstone) so a later explicit sync pass
// picks them up, and never touches the network.
type ManualStrategy struct {
	links       store.LinkRepository
	collections store.CollectionRepository
	deletions   store.DeletionRepository
	logger      *loggy.Logger
}

// NewManualStrategy creates the deferred strategy
func NewManualStrategy(
	links store.LinkRepository,
	collections store.CollectionRepository,
	deletions store.DeletionRepository,
	logger *loggy.Logger,
) *ManualStrategy {
	return &ManualStrategy{links: links, collections: collections, deletions: deletions, logger: logger}
}

// ExecuteSync marks the operation's entities dirty. Local storage failures
// are surfaced as hard failures since even a deferred enqueue must be
// durable.
func (s *ManualStrategy) ExecuteSync(ctx context.Context, op *Operation, tok *Token) *Result {
	if err := tok.Check(); err != nil {
		return FailureResult(err.Error())
	}

	switch op.Kind {
	case KindBulk:
		return s.executeBulk(ctx, op, tok)
	case KindImport:
		return s.executeImport(ctx, op, tok)
	default:
		if err := s.markDirty(ctx, op); err != nil {
			return FailureResult(err.Error(), op.EntityID)
		}
		return QueuedResult()
	}
}

// markDirty records a single operation for a later sync pass
func (s *ManualStrategy) markDirty(ctx context.Context, op *Operation) error {
	switch op.Kind {
	case KindLinkCreate, KindLinkUpdate:
		return s.links.MarkLinkDirty(ctx, op.EntityID)
	case KindLinkMove:
		// the collection change is applied and flagged in the same write
		return s.links.UpdateLinkCollection(ctx, op.EntityID, op.TargetCollection)
	case KindLinkDelete, KindCollectionDelete:
		// the local row is already gone; a never-pushed entity has no remote
		// counterpart, everything else leaves a tombstone for the next
		// sync-up pass
		if op.RemoteID == "" {
			return nil
		}
		return s.deletions.AddDeletion(ctx, op.Kind.EntityType(), op.RemoteID)
	case KindCollectionCreate, KindCollectionUpdate:
		return s.collections.MarkCollectionDirty(ctx, op.EntityID)
	default:
		return fmt.Errorf("unsupported operation kind %s", op.Kind)
	}
}

func (s *ManualStrategy) executeBulk(ctx context.Context, op *Operation, tok *Token) *Result {
	total := len(op.Sub)
	var failedIDs []string
	var lastErr string

	for i, sub := range op.Sub {
		if err := tok.Check(); err != nil {
			// already-marked items stay marked
			return FailureResult(err.Error(), failedIDs...)
		}

		if err := s.markDirty(ctx, sub); err != nil {
			s.logger.Warn("Failed to queue operation", "operation", sub.ID, "error", err)
			failedIDs = append(failedIDs, sub.EntityID)
			lastErr = err.Error()
		}

		if op.Progress != nil {
			op.Progress(i+1, total)
		}
	}

	if len(failedIDs) == 0 {
		return QueuedResult()
	}
	msg := fmt.Sprintf("failed to queue %d of %d operations: %s", len(failedIDs), total, lastErr)
	if len(failedIDs) >= total {
		return FailureResult(msg, failedIDs...)
	}
	return PartialFailureResult(msg, failedIDs)
}

func (s *ManualStrategy) executeImport(ctx context.Context, op *Operation, tok *Token) *Result {
	total := len(op.LinkIDs)
	var failedIDs []string
	var lastErr string

	for i, id := range op.LinkIDs {
		if err := tok.Check(); err != nil {
			return FailureResult(err.Error(), failedIDs...)
		}

		if err := s.links.MarkLinkDirty(ctx, id); err != nil {
			s.logger.Warn("Failed to queue imported link", "link", id, "error", err)
			failedIDs = append(failedIDs, id)
			lastErr = err.Error()
		}

		if op.Progress != nil {
			op.Progress(i+1, total)
		}
	}

	if len(failedIDs) == 0 {
		return QueuedResult()
	}
	msg := fmt.Sprintf("failed to queue %d of %d imported links: %s", len(failedIDs), total, lastErr)
	if len(failedIDs) >= total {
		return FailureResult(msg, failedIDs...)
	}
	return PartialFailureResult(msg, failedIDs)
}
