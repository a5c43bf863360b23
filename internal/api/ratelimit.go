package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// defaultCooldown is used when a 429 carries no usable header
	defaultCooldown = time.Minute

	// maxCooldown caps whatever the server asks us to wait
	maxCooldown = 5 * time.Minute
)

// RateLimitError signals that a call was short-circuited because the server
// asked us to back off, or the client-side limiter ran out of budget
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.RetryAfter.Round(time.Second))
}

// cooldownState tracks the last observed 429 and the wait the server asked
// for. Reads and writes happen on the request path only, guarded by a mutex
// so concurrent bulk windows see a consistent view.
type cooldownState struct {
	mu       sync.Mutex
	last     time.Time
	cooldown time.Duration
}

func newCooldownState() *cooldownState {
	return &cooldownState{}
}

// check fails with a RateLimitError carrying the remaining wait if the
// cooldown window is still open
func (s *cooldownState) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last.IsZero() {
		return nil
	}

	remaining := time.Until(s.last.Add(s.cooldown))
	if remaining > 0 {
		return &RateLimitError{RetryAfter: remaining}
	}

	return nil
}

// note records a 429 response, deriving the cooldown from Retry-After or
// X-RateLimit-Reset and capping it at maxCooldown
func (s *cooldownState) note(resp *http.Response) {
	cooldown := defaultCooldown

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cooldown = time.Duration(secs) * time.Second
		}
	} else if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(unix, 0)); until > 0 {
				cooldown = until
			}
		}
	}

	if cooldown > maxCooldown {
		cooldown = maxCooldown
	}

	s.mu.Lock()
	s.last = time.Now()
	s.cooldown = cooldown
	s.mu.Unlock()
}

// current returns the cooldown currently in effect
func (s *cooldownState) current() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldown
}
