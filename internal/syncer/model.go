// Package syncer implements the offline-first synchronization engine that
// reconciles local links and collections with the remote bookmark server.
package syncer

import (
	"fmt"

	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// Kind identifies the mutation a sync operation describes
type Kind int

const (
	KindLinkCreate Kind = iota
	KindLinkUpdate
	KindLinkDelete
	KindLinkMove
	KindCollectionCreate
	KindCollectionUpdate
	KindCollectionDelete
	KindBulk
	KindImport
)

// String returns the stable name used in operation IDs and sync logs
func (k Kind) String() string {
	switch k {
	case KindLinkCreate:
		return "link_create"
	case KindLinkUpdate:
		return "link_update"
	case KindLinkDelete:
		return "link_delete"
	case KindLinkMove:
		return "link_move"
	case KindCollectionCreate:
		return "collection_create"
	case KindCollectionUpdate:
		return "collection_update"
	case KindCollectionDelete:
		return "collection_delete"
	case KindBulk:
		return "bulk"
	case KindImport:
		return "import"
	default:
		return "unknown"
	}
}

// EntityType returns "link" or "collection" for single-entity kinds
func (k Kind) EntityType() string {
	switch k {
	case KindLinkCreate, KindLinkUpdate, KindLinkDelete, KindLinkMove:
		return "link"
	case KindCollectionCreate, KindCollectionUpdate, KindCollectionDelete:
		return "collection"
	default:
		return k.String()
	}
}

// ProgressFunc receives (completed, total) counts as a multi-item
// operation advances
type ProgressFunc func(completed, total int)

// Operation is an immutable description of one intended mutation.
//
// The ID is derived deterministically from the kind and entity ID for
// single-entity operations, so issuing the same mutation twice produces the
// same ID and the executor can reject the duplicate while the first is still
// in flight. Bulk and import operations get a fresh ULID instead.
type Operation struct {
	ID       string
	Kind     Kind
	EntityID string

	// RemoteID is carried by delete operations, whose local row is gone by
	// the time the operation executes
	RemoteID string

	// TargetCollection is the destination collection name for a move
	TargetCollection string

	// Sub holds the ordered sub-operations of a bulk operation
	Sub []*Operation

	// LinkIDs holds the local IDs of imported links
	LinkIDs []string

	// Progress, when set, is invoked after each unit of work inside a bulk
	// or import operation
	Progress ProgressFunc

	// OnRetry, when set, is invoked before each retry attempt of the
	// operation's remote call
	OnRetry func(attempt int, err error)
}

// operationID builds the deterministic ID for a single-entity operation
func operationID(kind Kind, entityID string) string {
	return fmt.Sprintf("%s:%s", kind, entityID)
}

// NewLinkCreate describes pushing a locally created link to the server
func NewLinkCreate(linkID string) *Operation {
	return &Operation{ID: operationID(KindLinkCreate, linkID), Kind: KindLinkCreate, EntityID: linkID}
}

// NewLinkUpdate describes pushing local link changes to the server
func NewLinkUpdate(linkID string) *Operation {
	return &Operation{ID: operationID(KindLinkUpdate, linkID), Kind: KindLinkUpdate, EntityID: linkID}
}

// NewLinkDelete describes deleting a link remotely. The remote ID is carried
// on the operation because the local row is deleted before the sync runs;
// an empty remote ID means the link was never pushed.
func NewLinkDelete(linkID, remoteID string) *Operation {
	return &Operation{ID: operationID(KindLinkDelete, linkID), Kind: KindLinkDelete, EntityID: linkID, RemoteID: remoteID}
}

// NewLinkMove describes reassigning a link to another collection
func NewLinkMove(linkID, targetCollection string) *Operation {
	return &Operation{
		ID:               operationID(KindLinkMove, linkID),
		Kind:             KindLinkMove,
		EntityID:         linkID,
		TargetCollection: targetCollection,
	}
}

// NewCollectionCreate describes pushing a locally created collection
func NewCollectionCreate(collectionID string) *Operation {
	return &Operation{ID: operationID(KindCollectionCreate, collectionID), Kind: KindCollectionCreate, EntityID: collectionID}
}

// NewCollectionUpdate describes pushing local collection changes
func NewCollectionUpdate(collectionID string) *Operation {
	return &Operation{ID: operationID(KindCollectionUpdate, collectionID), Kind: KindCollectionUpdate, EntityID: collectionID}
}

// NewCollectionDelete describes deleting a collection remotely
func NewCollectionDelete(collectionID, remoteID string) *Operation {
	return &Operation{ID: operationID(KindCollectionDelete, collectionID), Kind: KindCollectionDelete, EntityID: collectionID, RemoteID: remoteID}
}

// NewBulk wraps an ordered list of sub-operations into one operation
func NewBulk(sub []*Operation, progress ProgressFunc) *Operation {
	return &Operation{ID: ulid.OperationID(), Kind: KindBulk, Sub: sub, Progress: progress}
}

// NewImport describes pushing a batch of freshly imported links. The links
// are expected to already exist locally as dirty rows.
func NewImport(linkIDs []string, progress ProgressFunc) *Operation {
	return &Operation{ID: ulid.OperationID(), Kind: KindImport, LinkIDs: linkIDs, Progress: progress}
}

// Total returns the number of units of work the operation represents
func (o *Operation) Total() int {
	switch o.Kind {
	case KindBulk:
		return len(o.Sub)
	case KindImport:
		return len(o.LinkIDs)
	default:
		return 1
	}
}
