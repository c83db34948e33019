package udp

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-zoox/logger"
)

// SweepInterval is how often idle sessions are looked for.
const SweepInterval = 10 * time.Second

type entry[T io.Closer] struct {
	value      T
	lastActive time.Time
}

// Table maps a flow key to its session and closes sessions that stay idle
// longer than the timeout.
type Table[T io.Closer] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	timeout time.Duration
	now     func() time.Time
}

// NewTable uses time.Now when now is nil.
func NewTable[T io.Closer](timeout time.Duration, now func() time.Time) *Table[T] {
	if now == nil {
		now = time.Now
	}

	return &Table[T]{
		entries: map[string]*entry[T]{},
		timeout: timeout,
		now:     now,
	}
}

// Get returns the session for key and marks it active.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		var zero T
		return zero, false
	}

	e.lastActive = t.now()
	return e.value, true
}

func (t *Table[T]) Add(key string, value T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = &entry[T]{
		value:      value,
		lastActive: t.now(),
	}
}

// Remove deletes key only while it still maps to value, so a closing
// session cannot drop its replacement.
func (t *Table[T]) Remove(key string, value T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok || any(e.value) != any(value) {
		return false
	}

	delete(t.entries, key)
	return true
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep evicts and closes the sessions idle for longer than the timeout
// and returns how many it closed.
func (t *Table[T]) Sweep() int {
	now := t.now()

	t.mu.Lock()
	var expired []T
	for key, e := range t.entries {
		if now.Sub(e.lastActive) > t.timeout {
			expired = append(expired, e.value)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, value := range expired {
		if err := value.Close(); err != nil {
			logger.Debugf("[udp] failed to close session: %v", err)
		}
	}

	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (t *Table[T]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				logger.Debugf("[udp] swept %d idle sessions, %d left", n, t.Len())
			}
		case <-ctx.Done():
			t.Close()
			return
		}
	}
}

func (t *Table[T]) Close() {
	t.mu.Lock()
	entries := t.entries
	t.entries = map[string]*entry[T]{}
	t.mu.Unlock()

	for _, e := range entries {
		e.value.Close()
	}
}
