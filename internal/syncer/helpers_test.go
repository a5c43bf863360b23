package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/store"
)

// fakeLinkRepo is an in-memory LinkRepository for strategy tests
type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*store.Link
}

func newFakeLinkRepo(links ...*store.Link) *fakeLinkRepo {
	r := &fakeLinkRepo{links: make(map[string]*store.Link)}
	for _, l := range links {
		cp := *l
		r.links[l.ID] = &cp
	}
	return r
}

func (r *fakeLinkRepo) get(id string) *store.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		cp := *l
		return &cp
	}
	return nil
}

func (r *fakeLinkRepo) CreateLink(ctx context.Context, link *store.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *fakeLinkRepo) GetLink(ctx context.Context, id string) (*store.Link, error) {
	if l := r.get(id); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("link not found: %s", id)
}

func (r *fakeLinkRepo) GetLinkByURL(ctx context.Context, url string) (*store.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.URL == url {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLinkRepo) ListLinks(ctx context.Context, collection string, limit, offset int) ([]*store.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Link
	for _, l := range r.links {
		if collection == "" || l.Collection == collection {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) UpdateLink(ctx context.Context, link *store.Link) error {
	return r.CreateLink(ctx, link)
}

func (r *fakeLinkRepo) DeleteLink(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	return nil
}

func (r *fakeLinkRepo) ListDirtyLinks(ctx context.Context) ([]*store.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Link
	for _, l := range r.links {
		if l.IsDirty {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) CountDirtyLinks(ctx context.Context) (int, error) {
	dirty, _ := r.ListDirtyLinks(ctx)
	return len(dirty), nil
}

func (r *fakeLinkRepo) MarkLinkDirty(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return fmt.Errorf("link not found: %s", id)
	}
	l.IsDirty = true
	l.LastSyncedAt = nil
	return nil
}

func (r *fakeLinkRepo) MarkLinkSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return fmt.Errorf("link not found: %s", id)
	}
	l.IsDirty = false
	l.LastSyncedAt = &syncedAt
	if remoteID != "" {
		l.RemoteID = remoteID
	}
	return nil
}

func (r *fakeLinkRepo) UpdateLinkCollection(ctx context.Context, id, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return fmt.Errorf("link not found: %s", id)
	}
	l.Collection = collection
	l.IsDirty = true
	l.LastSyncedAt = nil
	return nil
}

func (r *fakeLinkRepo) SetLinkCollectionClean(ctx context.Context, id, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		l.Collection = collection
	}
	return nil
}

func (r *fakeLinkRepo) DeleteAllTags(ctx context.Context) error { return nil }

// fakeCollectionRepo is an in-memory CollectionRepository for strategy tests
type fakeCollectionRepo struct {
	mu          sync.Mutex
	collections map[string]*store.Collection
}

func newFakeCollectionRepo(collections ...*store.Collection) *fakeCollectionRepo {
	r := &fakeCollectionRepo{collections: make(map[string]*store.Collection)}
	for _, c := range collections {
		cp := *c
		r.collections[c.ID] = &cp
	}
	return r
}

func (r *fakeCollectionRepo) get(id string) *store.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (r *fakeCollectionRepo) CreateCollection(ctx context.Context, c *store.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.collections[c.ID] = &cp
	return nil
}

func (r *fakeCollectionRepo) GetCollection(ctx context.Context, id string) (*store.Collection, error) {
	if c := r.get(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("collection not found: %s", id)
}

func (r *fakeCollectionRepo) GetCollectionByName(ctx context.Context, name string) (*store.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.collections {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCollectionRepo) GetCollectionByRemoteID(ctx context.Context, remoteID string) (*store.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.collections {
		if c.RemoteID == remoteID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCollectionRepo) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Collection
	for _, c := range r.collections {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeCollectionRepo) UpdateCollection(ctx context.Context, c *store.Collection) error {
	return r.CreateCollection(ctx, c)
}

func (r *fakeCollectionRepo) DeleteCollection(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collections, id)
	return nil
}

func (r *fakeCollectionRepo) ListDirtyCollections(ctx context.Context) ([]*store.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Collection
	for _, c := range r.collections {
		if c.IsDirty {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCollectionRepo) CountDirtyCollections(ctx context.Context) (int, error) {
	dirty, _ := r.ListDirtyCollections(ctx)
	return len(dirty), nil
}

func (r *fakeCollectionRepo) MarkCollectionDirty(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[id]
	if !ok {
		return fmt.Errorf("collection not found: %s", id)
	}
	c.IsDirty = true
	c.LastSyncedAt = nil
	return nil
}

func (r *fakeCollectionRepo) MarkCollectionSynced(ctx context.Context, id, remoteID string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[id]
	if !ok {
		return fmt.Errorf("collection not found: %s", id)
	}
	c.IsDirty = false
	c.LastSyncedAt = &syncedAt
	if remoteID != "" {
		c.RemoteID = remoteID
	}
	return nil
}

func (r *fakeCollectionRepo) UpsertRemoteCollection(ctx context.Context, c *store.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.collections {
		if existing.RemoteID == c.RemoteID {
			existing.Name = c.Name
			existing.Description = c.Description
			existing.Visibility = c.Visibility
			existing.IsDirty = false
			c.ID = existing.ID
			return nil
		}
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("col-fake-%d", len(r.collections)+1)
	}
	cp := *c
	cp.IsDirty = false
	r.collections[cp.ID] = &cp
	return nil
}

func (r *fakeCollectionRepo) UpdateLinkCount(ctx context.Context, id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[id]; ok {
		c.LinkCount = count
	}
	return nil
}

func (r *fakeCollectionRepo) DeleteAllCollections(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections = make(map[string]*store.Collection)
	return nil
}

// fakeDeletionRepo is an in-memory DeletionRepository for strategy and
// reconciler tests
type fakeDeletionRepo struct {
	mu        sync.Mutex
	deletions []*store.Deletion
	nextID    int
}

func newFakeDeletionRepo() *fakeDeletionRepo {
	return &fakeDeletionRepo{}
}

func (r *fakeDeletionRepo) AddDeletion(ctx context.Context, entityType, remoteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deletions {
		if d.EntityType == entityType && d.RemoteID == remoteID {
			return nil
		}
	}
	r.nextID++
	r.deletions = append(r.deletions, &store.Deletion{
		ID:         fmt.Sprintf("del-fake-%d", r.nextID),
		EntityType: entityType,
		RemoteID:   remoteID,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (r *fakeDeletionRepo) ListDeletions(ctx context.Context) ([]*store.Deletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*store.Deletion, 0, len(r.deletions))
	for _, d := range r.deletions {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeDeletionRepo) RemoveDeletion(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.deletions {
		if d.ID == id {
			r.deletions = append(r.deletions[:i], r.deletions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeDeletionRepo) CountDeletions(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deletions), nil
}

func (r *fakeDeletionRepo) DeleteAllDeletions(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletions = nil
	return nil
}

// fakeRemote is a scriptable Remote for strategy and reconciler tests.
// Function fields override the default always-succeed behavior; counters
// record how often each endpoint was hit.
type fakeRemote struct {
	mu      sync.Mutex
	noToken bool

	createLinkFn       func(api.LinkPayload) (string, error)
	updateLinkFn       func(string, api.LinkPayload) error
	deleteLinkFn       func(string) error
	assignFn           func(string, string) error
	createCollectionFn func(api.CollectionPayload) (string, error)
	updateCollectionFn func(string, api.CollectionPayload) error
	deleteCollectionFn func(string) error
	listCollectionsFn  func() ([]api.RemoteCollection, error)
	collectionLinksFn  func(string) ([]api.RemoteLink, error)
	uncategorizedFn    func() ([]api.RemoteLink, error)

	createLinkCalls       int
	assignCalls           int
	deleteLinkCalls       int
	deleteCollectionCalls int
	nextRemoteID          int
}

func (f *fakeRemote) HasToken() bool { return !f.noToken }

func (f *fakeRemote) CreateLink(ctx context.Context, p api.LinkPayload) (string, error) {
	f.mu.Lock()
	f.createLinkCalls++
	f.nextRemoteID++
	id := fmt.Sprintf("remote-lnk-%d", f.nextRemoteID)
	fn := f.createLinkFn
	f.mu.Unlock()

	if fn != nil {
		return fn(p)
	}
	return id, nil
}

func (f *fakeRemote) UpdateLink(ctx context.Context, remoteID string, p api.LinkPayload) error {
	if f.updateLinkFn != nil {
		return f.updateLinkFn(remoteID, p)
	}
	return nil
}

func (f *fakeRemote) DeleteLink(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	f.deleteLinkCalls++
	fn := f.deleteLinkFn
	f.mu.Unlock()

	if fn != nil {
		return fn(remoteID)
	}
	return nil
}

func (f *fakeRemote) AssignLinkToCollection(ctx context.Context, linkRemoteID, collectionRemoteID string) error {
	f.mu.Lock()
	f.assignCalls++
	fn := f.assignFn
	f.mu.Unlock()

	if fn != nil {
		return fn(linkRemoteID, collectionRemoteID)
	}
	return nil
}

func (f *fakeRemote) CreateCollection(ctx context.Context, p api.CollectionPayload) (string, error) {
	if f.createCollectionFn != nil {
		return f.createCollectionFn(p)
	}
	f.mu.Lock()
	f.nextRemoteID++
	id := fmt.Sprintf("remote-col-%d", f.nextRemoteID)
	f.mu.Unlock()
	return id, nil
}

func (f *fakeRemote) UpdateCollection(ctx context.Context, remoteID string, p api.CollectionPayload) error {
	if f.updateCollectionFn != nil {
		return f.updateCollectionFn(remoteID, p)
	}
	return nil
}

func (f *fakeRemote) DeleteCollection(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	f.deleteCollectionCalls++
	fn := f.deleteCollectionFn
	f.mu.Unlock()

	if fn != nil {
		return fn(remoteID)
	}
	return nil
}

func (f *fakeRemote) ListCollections(ctx context.Context) ([]api.RemoteCollection, error) {
	if f.listCollectionsFn != nil {
		return f.listCollectionsFn()
	}
	return nil, nil
}

func (f *fakeRemote) GetCollectionLinks(ctx context.Context, collectionRemoteID string) ([]api.RemoteLink, error) {
	if f.collectionLinksFn != nil {
		return f.collectionLinksFn(collectionRemoteID)
	}
	return nil, nil
}

func (f *fakeRemote) GetUncategorizedLinks(ctx context.Context) ([]api.RemoteLink, error) {
	if f.uncategorizedFn != nil {
		return f.uncategorizedFn()
	}
	return nil, nil
}

// testPolicy is a retry policy with negligible delays for tests
func testPolicy() Policy {
	return Policy{
		MaxRetries:  defaultMaxRetries,
		BaseDelay:   time.Millisecond,
		ShouldRetry: ShouldRetry,
	}
}
