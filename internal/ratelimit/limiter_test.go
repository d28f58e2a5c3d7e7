package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestFixedWindowAllowsUpToCeiling(t *testing.T) {
	clock := newFakeClock()
	l, err := NewFixedWindow(3, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	assert.NoError(t, l.Check("c1"))
	assert.NoError(t, l.Check("c1"))
	assert.NoError(t, l.Check("c1"))

	err = l.Check("c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "c1", exceeded.ClientID)
	assert.Equal(t, 3, exceeded.Limit)
	assert.Equal(t, time.Minute, exceeded.RetryAfter)
}

func TestFixedWindowResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l, err := NewFixedWindow(3, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_ = l.Check("c1")
	}

	clock.Advance(time.Minute)
	assert.NoError(t, l.Check("c1"))

	w, ok := l.Snapshot("c1")
	require.True(t, ok)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.Now(), w.Start)
}

func TestFixedWindowClientsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l, err := NewFixedWindow(1, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	assert.NoError(t, l.Check("a"))
	assert.Error(t, l.Check("a"))
	assert.NoError(t, l.Check("b"))
}

func TestFixedWindowSweep(t *testing.T) {
	clock := newFakeClock()
	l, err := NewFixedWindow(3, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, l.Check("old"))
	clock.Advance(90 * time.Second)
	require.NoError(t, l.Check("fresh"))

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	_, ok := l.Snapshot("old")
	assert.False(t, ok)

	require.NoError(t, l.Check("old"))
	w, _ := l.Snapshot("old")
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.Now(), w.Start)
}

func TestFixedWindowSweepKeepsWindowAtExactlyTwiceLength(t *testing.T) {
	clock := newFakeClock()
	l, err := NewFixedWindow(3, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, l.Check("c1"))
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, l.Sweep())
	clock.Advance(time.Nanosecond)
	assert.Equal(t, 1, l.Sweep())
}

func TestFixedWindowConcurrentChecks(t *testing.T) {
	l, err := NewFixedWindow(50, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
	w, _ := l.Snapshot("shared")
	assert.Equal(t, 200, w.Count)
}

func TestNewFixedWindowRejectsBadSettings(t *testing.T) {
	_, err := NewFixedWindow(0, time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = NewFixedWindow(1, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Check("c"))
	}
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "10.0.0.1:abcde", ClientID("10.0.0.1:5555", "", "abcdefgh"))
	assert.Equal(t, "203.0.113.9:ab", ClientID("10.0.0.1:5555", "203.0.113.9, 10.0.0.1", "ab"))
	assert.Equal(t, "unknown:", ClientID("", "", ""))
	assert.Equal(t, "::1:xyz12", ClientID("[::1]:80", "", "xyz123"))
}
