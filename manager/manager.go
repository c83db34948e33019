package manager

import (
	"github.com/go-zoox/core-utils/safe"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when nothing is cached under the id.
var ErrNotFound = errors.New("not found")

// Manager is an append-only cache of derived values keyed by string.
// Values are computed once and never invalidated; concurrent misses may
// compute the same value twice, the last writer wins.
type Manager[T any] struct {
	cache *safe.Map
}

type Options struct {
	Cache *safe.Map
}

func New[T any](opts ...*Options) *Manager[T] {
	cache := safe.NewMap()
	if len(opts) == 1 && opts[0] != nil && opts[0].Cache != nil {
		cache = opts[0].Cache
	}

	return &Manager[T]{
		cache: cache,
	}
}

func (m *Manager[T]) Get(id string) (T, error) {
	if instance, ok := m.cache.Get(id).(T); ok {
		return instance, nil
	}

	var t T
	return t, errors.Wrapf(ErrNotFound, "id %s", id)
}

// GetOrCreate returns the cached value for id, or computes it with creator
// and caches it. A creator error is returned as is and nothing is cached.
func (m *Manager[T]) GetOrCreate(id string, creator func() (T, error)) (T, error) {
	if instance, err := m.Get(id); err == nil {
		return instance, nil
	}

	instance, err := creator()
	if err != nil {
		return instance, err
	}

	m.cache.Set(id, instance)
	return instance, nil
}
