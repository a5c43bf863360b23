package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/tildaslashalef/linkmark/internal/api"
	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

// Mode selects how mutations are synchronized
type Mode string

const (
	// ModeManual defers all remote work to an explicit sync pass
	ModeManual Mode = "manual"
	// ModeImmediate pushes every mutation to the server as it happens
	ModeImmediate Mode = "immediate"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeManual, ModeImmediate:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown sync mode %q (expected %q or %q)", s, ModeManual, ModeImmediate)
	}
}

// Remote is the slice of the API client the engine depends on
type Remote interface {
	HasToken() bool
	CreateLink(ctx context.Context, payload api.LinkPayload) (string, error)
	UpdateLink(ctx context.Context, remoteID string, payload api.LinkPayload) error
	DeleteLink(ctx context.Context, remoteID string) error
	AssignLinkToCollection(ctx context.Context, linkRemoteID, collectionRemoteID string) error
	CreateCollection(ctx context.Context, payload api.CollectionPayload) (string, error)
	UpdateCollection(ctx context.Context, remoteID string, payload api.CollectionPayload) error
	DeleteCollection(ctx context.Context, remoteID string) error
	ListCollections(ctx context.Context) ([]api.RemoteCollection, error)
	GetCollectionLinks(ctx context.Context, collectionRemoteID string) ([]api.RemoteLink, error)
	GetUncategorizedLinks(ctx context.Context) ([]api.RemoteLink, error)
}

// Strategy executes a sync operation.
//
// Implementations never create or delete local rows for single operations;
// their local side effects are limited to dirty-flag transitions (marking
// an entity synced on confirmed remote success, or dirty when deferring).
type Strategy interface {
	ExecuteSync(ctx context.Context, op *Operation, tok *Token) *Result
}

// Factory builds and memoizes strategy instances per mode
type Factory struct {
	mu    sync.Mutex
	cache map[Mode]Strategy

	links       store.LinkRepository
	collections store.CollectionRepository
	deletions   store.DeletionRepository
	remote      Remote
	settings    config.SettingsRepository
	retry       Policy
	logger      *loggy.Logger
}

// NewFactory creates a strategy factory over the given collaborators
func NewFactory(
	links store.LinkRepository,
	collections store.CollectionRepository,
	deletions store.DeletionRepository,
	remote Remote,
	settings config.SettingsRepository,
	retry Policy,
	logger *loggy.Logger,
) *Factory {
	return &Factory{
		cache:       make(map[Mode]Strategy),
		links:       links,
		collections: collections,
		deletions:   deletions,
		remote:      remote,
		settings:    settings,
		retry:       retry,
		logger:      logger,
	}
}

// ForMode returns the strategy for the given mode, building it on first use
func (f *Factory) ForMode(mode Mode) Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.cache[mode]; ok {
		return s
	}

	var s Strategy
	switch mode {
	case ModeImmediate:
		s = NewImmediateStrategy(f.links, f.collections, f.remote, f.retry, f.logger)
	default:
		s = NewManualStrategy(f.links, f.collections, f.deletions, f.logger)
	}

	f.cache[mode] = s
	return s
}

// CurrentMode resolves the active sync mode: the persisted setting wins,
// falling back to the configured default
func (f *Factory) CurrentMode(ctx context.Context) Mode {
	if f.settings != nil {
		if v, err := f.settings.GetSetting(ctx, config.KeySyncMode); err != nil {
			f.logger.Warn("Failed to read sync mode setting", "error", err)
		} else if v != "" {
			if mode, err := ParseMode(v); err == nil {
				return mode
			}
			f.logger.Warn("Ignoring invalid sync mode setting", "value", v)
		}
	}

	if cfg, err := config.Get(); err == nil {
		if mode, err := ParseMode(cfg.Sync.Mode); err == nil {
			return mode
		}
	}
	return ModeManual
}

// Current returns the strategy for the active sync mode
func (f *Factory) Current(ctx context.Context) Strategy {
	return f.ForMode(f.CurrentMode(ctx))
}
