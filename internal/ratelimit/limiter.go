package ratelimit

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
)

// Limiter gates outbound capability calls per client.
type Limiter interface {
	Check(clientID string) error
}

// Window is the accounting state for one client.
type Window struct {
	ClientID string
	Start    time.Time
	Count    int
}

// ExceededError reports a rejected check. It matches errors.ErrRateLimited.
type ExceededError struct {
	ClientID   string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per %s, retry after %s",
		e.ClientID, e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}

func (e *ExceededError) Unwrap() error {
	return apperrors.ErrRateLimited
}

// FixedWindow counts requests per client in windows of fixed length.
// A client's count resets once now - start >= window.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*Window
	limit   int
	window  time.Duration
	now     func() time.Time
}

type Option func(*FixedWindow)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		l.now = now
	}
}

func NewFixedWindow(limit int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rate limit ceiling must be positive, got %d", limit))
	}
	if window <= 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rate limit window must be positive, got %s", window))
	}

	l := &FixedWindow{
		windows: make(map[string]*Window),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check records one request for clientID and rejects it with *ExceededError
// when the window ceiling is passed.
func (l *FixedWindow) Check(clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[clientID]
	if !ok {
		w = &Window{ClientID: clientID, Start: now}
		l.windows[clientID] = w
	} else if now.Sub(w.Start) >= l.window {
		w.Start = now
		w.Count = 0
	}

	w.Count++
	if w.Count > l.limit {
		return &ExceededError{
			ClientID:   clientID,
			Limit:      l.limit,
			Window:     l.window,
			RetryAfter: w.Start.Add(l.window).Sub(now),
		}
	}
	return nil
}

// Sweep drops windows whose start is more than two window lengths old and
// returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.windows {
		if now.Sub(w.Start) > 2*l.window {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of the window tracked for clientID.
func (l *FixedWindow) Snapshot(clientID string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[clientID]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Len reports how many clients are tracked.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *FixedWindow) WindowLength() time.Duration {
	return l.window
}

// Unlimited allows every request. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Check(string) error { return nil }
