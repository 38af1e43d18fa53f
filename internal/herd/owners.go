package herd

import (
	"context"
	"sync"

	"github.com/herdbook/herdbook/internal/query"
)

// owner is the animal a record belonged to before an update. known is false when
// the record was in no cached detail or list.
type owner struct {
	animalID int64
	known    bool
}

// cachedOwner finds the animal that owns record id in the cached detail or, failing
// that, in the cached full list.
func cachedOwner[T any](c *query.Client, keys animalScopedKeys, id int64, idOf, animalOf func(T) int64) owner {
	if r, ok := query.Get[T](c, keys.Detail(id)); ok {
		return owner{animalID: animalOf(r), known: true}
	}
	if rows, ok := query.Get[[]T](c, keys.Lists()); ok {
		for _, r := range rows {
			if idOf(r) == id {
				return owner{animalID: animalOf(r), known: true}
			}
		}
	}
	return owner{}
}

// moves remembers the previous owner of each record under update, between the
// mutation function and its invalidation.
type moves struct {
	mu    sync.Mutex
	prior map[int64]owner
}

func (m *moves) note(recordID int64, o owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prior == nil {
		m.prior = make(map[int64]owner)
	}
	m.prior[recordID] = o
}

func (m *moves) take(recordID int64) owner {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.prior[recordID]
	delete(m.prior, recordID)
	return o
}

// tracked wraps an update so the record's owner is read from the cache before the
// request is sent. The entry is dropped again when the request fails.
func tracked[V, R any](m *moves, recordID func(V) int64, lookup func(id int64) owner, fn func(context.Context, V) (R, error)) func(context.Context, V) (R, error) {
	return func(ctx context.Context, v V) (R, error) {
		id := recordID(v)
		m.note(id, lookup(id))
		r, err := fn(ctx, v)
		if err != nil {
			m.take(id)
		}
		return r, err
	}
}
