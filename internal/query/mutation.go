package query

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MutationStatus is the lifecycle state of a mutation.
type MutationStatus int

const (
	MutationIdle MutationStatus = iota
	MutationInFlight
	MutationSucceeded
	MutationFailed
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationInFlight:
		return "in-flight"
	case MutationSucceeded:
		return "succeeded"
	case MutationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MutationState is a snapshot of a mutation. Invalidated is set on success, Err on
// failure.
type MutationState struct {
	Status      MutationStatus
	Invalidated []Key
	Err         error
}

// Mutation is a write against the server together with the cache keys it makes
// stale. Fn runs once per Run; on success OnSuccess runs first and then every key
// returned by Invalidates is invalidated. A failed run invalidates nothing.
type Mutation[V, R any] struct {
	Fn          func(ctx context.Context, v V) (R, error)
	Invalidates func(v V, r R) []Key
	OnSuccess   func(v V, r R)

	mu    sync.Mutex
	state MutationState
}

// Run executes the mutation against c.
func (m *Mutation[V, R]) Run(ctx context.Context, c *Client, v V) (R, error) {
	m.setState(MutationState{Status: MutationInFlight})

	r, err := m.Fn(ctx, v)
	if err != nil {
		m.setState(MutationState{Status: MutationFailed, Err: err})
		log.Ctx(ctx).Debug().Err(err).Msg("mutation failed")
		return r, err
	}

	if m.OnSuccess != nil {
		m.OnSuccess(v, r)
	}

	var keys []Key
	if m.Invalidates != nil {
		keys = m.Invalidates(v, r)
	}
	c.Invalidate(keys...)

	m.setState(MutationState{Status: MutationSucceeded, Invalidated: keys})
	return r, nil
}

// State returns the state of the most recent run.
func (m *Mutation[V, R]) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[V, R]) setState(s MutationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}
