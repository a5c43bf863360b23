package syncer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/ulid"
)

// Progress stages emitted by the background executor
const (
	StageStarted   = "started"
	StageRetrying  = "retrying"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// SyncProgress is a single progress event for a background operation
type SyncProgress struct {
	OperationID string
	Stage       string
	Attempt     int
	Message     string
}

// ProgressSink consumes SyncProgress events
type ProgressSink func(SyncProgress)

// BulkSyncProgress is the aggregate state of a bulk background run, emitted
// before the run, after each item, and once at the end
type BulkSyncProgress struct {
	Total       int
	Completed   int
	Failed      int
	CurrentOpID string
	IsCompleted bool
	Errors      []string
}

// BulkProgressSink consumes BulkSyncProgress events
type BulkProgressSink func(BulkSyncProgress)

// Executor runs sync operations outside the caller's critical path. It
// keeps an id-keyed registry of in-flight operations so the same operation
// is never executed twice concurrently, and supports cancellation by id
// or globally.
type Executor struct {
	mu             sync.Mutex
	active         map[string]*Token
	maxConcurrency int
	logger         *loggy.Logger
}

// NewExecutor creates a background executor with the given bulk window size
func NewExecutor(maxConcurrency int, logger *loggy.Logger) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	return &Executor{
		active:         make(map[string]*Token),
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// register claims the operation id, returning its cancellation token, or
// fails if the operation is already in flight
func (e *Executor) register(id string) (*Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.active[id]; ok {
		return nil, fmt.Errorf("operation %s already running", id)
	}
	tok := NewToken()
	e.active[id] = tok
	return tok, nil
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// ActiveCount returns the number of in-flight operations
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Cancel cancels the in-flight operation with the given id, reporting
// whether one was found
func (e *Executor) Cancel(id, reason string) bool {
	e.mu.Lock()
	tok, ok := e.active[id]
	e.mu.Unlock()

	if ok {
		tok.Cancel(reason)
	}
	return ok
}

// CancelAll cancels every in-flight operation, returning how many were
// cancelled
func (e *Executor) CancelAll(reason string) int {
	e.mu.Lock()
	tokens := make([]*Token, 0, len(e.active))
	for _, tok := range e.active {
		tokens = append(tokens, tok)
	}
	e.mu.Unlock()

	for _, tok := range tokens {
		tok.Cancel(reason)
	}
	return len(tokens)
}

// ExecuteInBackground runs a single operation on its own goroutine,
// delivering the result on the returned channel. The duplicate check is
// synchronous: a second call with the same operation id while the first is
// in flight fails immediately.
func (e *Executor) ExecuteInBackground(ctx context.Context, op *Operation, strategy Strategy, sink ProgressSink) (<-chan *Result, error) {
	tok, err := e.register(op.ID)
	if err != nil {
		return nil, err
	}

	emit := func(p SyncProgress) {
		if sink != nil {
			sink(p)
		}
	}

	// the retry hook goes on a copy so the caller's operation stays untouched
	run := op
	if sink != nil && op.OnRetry == nil {
		cp := *op
		cp.OnRetry = func(attempt int, err error) {
			emit(SyncProgress{OperationID: op.ID, Stage: StageRetrying, Attempt: attempt, Message: err.Error()})
		}
		run = &cp
	}

	ch := make(chan *Result, 1)
	go func() {
		defer e.release(op.ID)

		emit(SyncProgress{OperationID: op.ID, Stage: StageStarted})
		res := strategy.ExecuteSync(ctx, run, tok)

		if res.Success() {
			emit(SyncProgress{OperationID: op.ID, Stage: StageCompleted})
		} else {
			emit(SyncProgress{OperationID: op.ID, Stage: StageFailed, Message: res.Message})
		}

		ch <- res
	}()

	return ch, nil
}

// ExecuteBulkInBackground runs a list of operations in sequential windows
// of at most maxConcurrency, executing each window's operations
// concurrently and waiting for the whole window before starting the next.
// Cancellation is checked at each window boundary; items already dispatched
// in the current window run to completion.
func (e *Executor) ExecuteBulkInBackground(ctx context.Context, ops []*Operation, strategy Strategy, sink BulkProgressSink) (<-chan *Result, error) {
	runID := ulid.OperationID()
	runTok, err := e.register(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Result, 1)
	go func() {
		defer e.release(runID)
		ch <- e.runBulk(ctx, runTok, ops, strategy, sink)
	}()
	return ch, nil
}

func (e *Executor) runBulk(ctx context.Context, runTok *Token, ops []*Operation, strategy Strategy, sink BulkProgressSink) *Result {
	total := len(ops)
	progress := BulkSyncProgress{Total: total}
	var progressMu sync.Mutex

	emit := func() {
		if sink != nil {
			sink(progress)
		}
	}
	emit()

	var failedIDs []string
	var lastErr string
	cancelled := false

	for start := 0; start < total; start += e.maxConcurrency {
		if err := runTok.Check(); err != nil {
			// remaining operations never ran
			progressMu.Lock()
			for _, op := range ops[start:] {
				progress.Failed++
				progress.Errors = append(progress.Errors, fmt.Sprintf("%s: %s", op.ID, err.Error()))
				failedIDs = append(failedIDs, op.EntityID)
			}
			progressMu.Unlock()
			lastErr = err.Error()
			cancelled = true
			break
		}

		end := start + e.maxConcurrency
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, op := range ops[start:end] {
			op := op
			g.Go(func() error {
				res := e.runBulkItem(gctx, runTok, op, strategy)

				progressMu.Lock()
				progress.CurrentOpID = op.ID
				if res.Success() {
					progress.Completed++
				} else {
					progress.Failed++
					progress.Errors = append(progress.Errors, fmt.Sprintf("%s: %s", op.ID, res.Message))
					if len(res.FailedIDs) > 0 {
						failedIDs = append(failedIDs, res.FailedIDs...)
					} else {
						failedIDs = append(failedIDs, op.EntityID)
					}
					lastErr = res.Message
				}
				emit()
				progressMu.Unlock()

				return nil
			})
		}
		_ = g.Wait()
	}

	progressMu.Lock()
	progress.CurrentOpID = ""
	progress.IsCompleted = true
	emit()
	progressMu.Unlock()

	if cancelled {
		return FailureResult(lastErr, failedIDs...)
	}
	msg := ""
	if len(failedIDs) > 0 {
		msg = fmt.Sprintf("%d of %d operations failed: %s", progress.Failed, total, lastErr)
	}
	return aggregateResult(total, failedIDs, msg)
}

// runBulkItem claims the item's operation id for the duration of its
// execution so it also participates in duplicate rejection and cancel-by-id
func (e *Executor) runBulkItem(ctx context.Context, runTok *Token, op *Operation, strategy Strategy) *Result {
	itemTok, err := e.register(op.ID)
	if err != nil {
		return FailureResult(err.Error(), op.EntityID)
	}
	defer e.release(op.ID)

	tok := Combine(runTok, itemTok)
	defer tok.Cancel("finished")

	return strategy.ExecuteSync(ctx, op, tok)
}
