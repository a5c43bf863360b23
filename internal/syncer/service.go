package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
)

// Sync types recorded in sync logs
const (
	SyncTypeOperation = "operation"
	SyncTypeBulk      = "bulk"
	SyncTypeUp        = "up"
	SyncTypeDown      = "down"
	SyncTypeFull      = "full"
)

// Service is the engine's public surface: it resolves the active strategy,
// routes operations through the background executor, applies the failure
// fallback contract, and records sync logs.
type Service struct {
	factory     *Factory
	executor    *Executor
	reconciler  *Reconciler
	links       store.LinkRepository
	collections store.CollectionRepository
	logs        Repository
	settings    config.SettingsRepository
	logger      *loggy.Logger
}

// NewService wires the sync engine from its collaborators
func NewService(
	factory *Factory,
	executor *Executor,
	reconciler *Reconciler,
	links store.LinkRepository,
	collections store.CollectionRepository,
	logs Repository,
	settings config.SettingsRepository,
	logger *loggy.Logger,
) *Service {
	return &Service{
		factory:     factory,
		executor:    executor,
		reconciler:  reconciler,
		links:       links,
		collections: collections,
		logs:        logs,
		settings:    settings,
		logger:      logger,
	}
}

// Mode returns the active sync mode
func (s *Service) Mode(ctx context.Context) Mode {
	return s.factory.CurrentMode(ctx)
}

// SetMode persists the sync mode
func (s *Service) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	return s.settings.SetSetting(ctx, config.KeySyncMode, string(mode))
}

// Sync executes one operation synchronously under the active strategy
func (s *Service) Sync(ctx context.Context, op *Operation) *Result {
	return s.SyncWithToken(ctx, op, NewToken())
}

// SyncWithToken executes one operation synchronously with an
// externally-owned cancellation token
func (s *Service) SyncWithToken(ctx context.Context, op *Operation, tok *Token) *Result {
	strategy := s.factory.Current(ctx)
	started := time.Now()

	res := strategy.ExecuteSync(ctx, op, tok)
	s.applyFailureFallback(ctx, op, res)
	s.recordResult(ctx, syncTypeFor(op), op, res, started)
	return res
}

// SyncInBackground runs one operation on the background executor. The
// returned channel delivers the final result; duplicate in-flight
// operations are rejected synchronously.
func (s *Service) SyncInBackground(ctx context.Context, op *Operation, sink ProgressSink) (<-chan *Result, error) {
	strategy := s.factory.Current(ctx)
	started := time.Now()

	inner, err := s.executor.ExecuteInBackground(ctx, op, strategy, sink)
	if err != nil {
		return nil, err
	}

	out := make(chan *Result, 1)
	go func() {
		res := <-inner
		s.applyFailureFallback(ctx, op, res)
		s.recordResult(ctx, syncTypeFor(op), op, res, started)
		out <- res
	}()
	return out, nil
}

// BulkSyncInBackground runs a list of operations through the bounded
// concurrency bulk executor
func (s *Service) BulkSyncInBackground(ctx context.Context, ops []*Operation, sink BulkProgressSink) (<-chan *Result, error) {
	strategy := s.factory.Current(ctx)
	started := time.Now()

	inner, err := s.executor.ExecuteBulkInBackground(ctx, ops, strategy, sink)
	if err != nil {
		return nil, err
	}

	out := make(chan *Result, 1)
	go func() {
		res := <-inner
		s.recordResult(ctx, SyncTypeBulk, nil, res, started)
		out <- res
	}()
	return out, nil
}

// Cancel cancels an in-flight background operation by id
func (s *Service) Cancel(id, reason string) bool {
	return s.executor.Cancel(id, reason)
}

// CancelAll cancels every in-flight background operation
func (s *Service) CancelAll(reason string) int {
	return s.executor.CancelAll(reason)
}

// SyncUp pushes all unpushed local changes to the server
func (s *Service) SyncUp(ctx context.Context, tok *Token) (*Stats, error) {
	started := time.Now()
	stats, err := s.reconciler.SyncUp(ctx, tok)
	s.recordReconcile(ctx, SyncTypeUp, stats, err, started)
	return stats, err
}

// SyncDown pulls remote state into the local store
func (s *Service) SyncDown(ctx context.Context, tok *Token, forceOverwrite bool) (*Stats, error) {
	started := time.Now()
	stats, err := s.reconciler.SyncDown(ctx, tok, forceOverwrite)
	s.recordReconcile(ctx, SyncTypeDown, stats, err, started)
	return stats, err
}

// FullSync runs a push followed by a pull
func (s *Service) FullSync(ctx context.Context, tok *Token, resolveConflicts bool) (*Stats, error) {
	started := time.Now()
	stats, err := s.reconciler.FullSync(ctx, tok, resolveConflicts)
	s.recordReconcile(ctx, SyncTypeFull, stats, err, started)
	return stats, err
}

// StatusReport summarizes the engine state for the status view
type StatusReport struct {
	Mode             Mode
	DirtyLinks       int
	DirtyCollections int
	ActiveOperations int
	LastFullSync     *time.Time
	RecentLogs       []*Log
}

// Status gathers the current sync status
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{
		Mode:             s.Mode(ctx),
		ActiveOperations: s.executor.ActiveCount(),
	}

	var err error
	if report.DirtyLinks, err = s.links.CountDirtyLinks(ctx); err != nil {
		return nil, err
	}
	if report.DirtyCollections, err = s.collections.CountDirtyCollections(ctx); err != nil {
		return nil, err
	}

	if last, err := s.logs.LastSuccessfulSync(ctx, SyncTypeFull); err != nil {
		s.logger.Warn("Failed to load last sync log", "error", err)
	} else if last != nil {
		report.LastFullSync = &last.CompletedAt
	}

	if report.RecentLogs, err = s.logs.ListRecentLogs(ctx, 10); err != nil {
		s.logger.Warn("Failed to load recent sync logs", "error", err)
	}

	return report, nil
}

// applyFailureFallback re-marks the affected entity dirty after a failed
// single mutating operation, so the change is retried on the next cycle
// instead of being silently lost
func (s *Service) applyFailureFallback(ctx context.Context, op *Operation, res *Result) {
	if res.Status != StatusFailure {
		return
	}

	var err error
	switch op.Kind {
	case KindLinkCreate, KindLinkUpdate, KindLinkMove:
		err = s.links.MarkLinkDirty(ctx, op.EntityID)
	case KindCollectionCreate, KindCollectionUpdate:
		err = s.collections.MarkCollectionDirty(ctx, op.EntityID)
	default:
		return
	}

	if err != nil {
		s.logger.Error("Failed to re-mark entity dirty after sync failure",
			"operation", op.ID, "error", err)
	}
}

func syncTypeFor(op *Operation) string {
	switch op.Kind {
	case KindBulk, KindImport:
		return SyncTypeBulk
	default:
		return SyncTypeOperation
	}
}

func (s *Service) recordResult(ctx context.Context, syncType string, op *Operation, res *Result, started time.Time) {
	log := &Log{StartedAt: started}
	log.SyncType = syncType
	if op != nil {
		log.EntityType = op.Kind.EntityType()
		log.EntityID = op.EntityID
	}

	items := 0
	if res.Success() {
		items = 1
	}
	if op != nil && (op.Kind == KindBulk || op.Kind == KindImport) {
		items = op.Total() - len(res.FailedIDs)
	}

	log.Finish(res.Success(), items, classifyMessage(res.Message), res.Message)
	if err := s.logs.CreateLog(ctx, log); err != nil {
		s.logger.Warn("Failed to write sync log", "error", err)
	}
}

func (s *Service) recordReconcile(ctx context.Context, syncType string, stats *Stats, err error, started time.Time) {
	log := &Log{StartedAt: started, SyncType: syncType}

	items := 0
	errMsg := ""
	if stats != nil {
		items = stats.CollectionsPushed + stats.LinksPushed + stats.CollectionsPulled + stats.LinksPulled + stats.Deleted
		errMsg = strings.Join(stats.Errors, "; ")
	}
	if err != nil {
		errMsg = err.Error()
	}

	success := err == nil && (stats == nil || stats.Failed == 0)
	log.Finish(success, items, classifyMessage(errMsg), errMsg)
	if logErr := s.logs.CreateLog(ctx, log); logErr != nil {
		s.logger.Warn("Failed to write sync log", "error", logErr)
	}
}

// classifyMessage maps a failure message to a coarse error type for logs
func classifyMessage(msg string) string {
	if msg == "" {
		return ""
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "cancelled"):
		return "cancelled"
	case strings.Contains(lower, "rate limited") || strings.Contains(lower, "429"):
		return "rate_limited"
	case strings.Contains(lower, "token") || strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "unauthorized"):
		return "auth"
	case strings.Contains(lower, "conflict") || strings.Contains(lower, "overwritten"):
		return "conflict"
	default:
		return "error"
	}
}
