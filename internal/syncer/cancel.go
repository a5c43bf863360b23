package syncer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CancelError is returned from cancellation checks once a token has been
// cancelled. It is terminal for the current operation and never retried.
type CancelError struct {
	Reason string
}

func (e *CancelError) Error() string {
	if e.Reason == "" {
		return "operation cancelled"
	}
	return fmt.Sprintf("operation cancelled: %s", e.Reason)
}

// IsCancel reports whether err is (or wraps) a cancellation error
func IsCancel(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce)
}

// Token is a one-way cooperative cancellation primitive. It starts active
// and can transition to cancelled exactly once, recording an optional
// reason. Long-running code polls Check at each loop iteration and before
// each network call; nothing is interrupted preemptively.
type Token struct {
	mu     sync.Mutex
	once   sync.Once
	done   chan struct{}
	reason string
}

// NewToken creates an active token
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel moves the token to the cancelled state, recording the reason.
// Subsequent calls are no-ops; the first reason wins.
func (t *Token) Cancel(reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
	})
}

// Done returns a channel closed when the token is cancelled
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has been cancelled
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Reason returns the cancellation reason, or "" while the token is active
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Check returns a *CancelError carrying the reason if the token has been
// cancelled, nil otherwise
func (t *Token) Check() error {
	if t.Cancelled() {
		return &CancelError{Reason: t.Reason()}
	}
	return nil
}

// Combine derives a token that cancels as soon as any input token cancels,
// propagating the first reason observed
func Combine(tokens ...*Token) *Token {
	combined := NewToken()
	for _, tok := range tokens {
		go func(tok *Token) {
			select {
			case <-tok.Done():
				combined.Cancel(tok.Reason())
			case <-combined.Done():
			}
		}(tok)
	}
	return combined
}

// WithTimeout creates a token that self-cancels after the given duration
func WithTimeout(d time.Duration) *Token {
	tok := NewToken()
	timer := time.AfterFunc(d, func() {
		tok.Cancel(fmt.Sprintf("timed out after %s", d))
	})
	go func() {
		<-tok.Done()
		timer.Stop()
	}()
	return tok
}
