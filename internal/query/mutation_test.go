package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type animalInput struct {
	Tag string
}

type animalRecord struct {
	ID  int64
	Tag string
}

func TestMutationSuccessInvalidatesAfterOnSuccess(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	ctx := context.Background()

	listFetch, listCalls := countingFetch([]string{"A-1"})
	_, err := Query(ctx, c, animals.Lists(), listFetch)
	require.NoError(t, err)

	var order []string
	m := &Mutation[animalInput, animalRecord]{
		Fn: func(ctx context.Context, in animalInput) (animalRecord, error) {
			order = append(order, "fn")
			return animalRecord{ID: 12, Tag: in.Tag}, nil
		},
		OnSuccess: func(in animalInput, r animalRecord) {
			order = append(order, "onSuccess")
			c.SetQueryData(animals.Detail(r.ID), r)
		},
		Invalidates: func(in animalInput, r animalRecord) []Key {
			order = append(order, "invalidates")
			return []Key{animals.Lists()}
		},
	}
	assert.Equal(t, MutationIdle, m.State().Status)

	r, err := m.Run(ctx, c, animalInput{Tag: "A-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), r.ID)
	assert.Equal(t, []string{"fn", "onSuccess", "invalidates"}, order)

	st := m.State()
	assert.Equal(t, MutationSucceeded, st.Status)
	require.Len(t, st.Invalidated, 1)
	assert.True(t, st.Invalidated[0].Equal(animals.Lists()))

	assert.Equal(t, StatusStale, c.State(animals.Lists()).Status)
	detail, ok := Get[animalRecord](c, animals.Detail(12))
	assert.True(t, ok)
	assert.Equal(t, "A-2", detail.Tag)
	assert.Equal(t, StatusFresh, c.State(animals.Detail(12)).Status)

	_, err = Query(ctx, c, animals.Lists(), listFetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), listCalls.Load())
}

func TestMutationFailureInvalidatesNothing(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	ctx := context.Background()
	c.SetQueryData(animals.Lists(), []string{"A-1"})

	boom := errors.New("Tag already in use")
	called := false
	m := &Mutation[animalInput, animalRecord]{
		Fn: func(ctx context.Context, in animalInput) (animalRecord, error) {
			return animalRecord{}, boom
		},
		OnSuccess: func(animalInput, animalRecord) { called = true },
		Invalidates: func(animalInput, animalRecord) []Key {
			called = true
			return []Key{animals.All()}
		},
	}

	_, err := m.Run(ctx, c, animalInput{Tag: "A-1"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)

	st := m.State()
	assert.Equal(t, MutationFailed, st.Status)
	assert.ErrorIs(t, st.Err, boom)
	assert.Empty(t, st.Invalidated)
	assert.Equal(t, StatusFresh, c.State(animals.Lists()).Status)
}

func TestMutationWithoutHooks(t *testing.T) {
	c := NewClient()
	m := &Mutation[int64, struct{}]{
		Fn: func(ctx context.Context, id int64) (struct{}, error) { return struct{}{}, nil },
	}
	_, err := m.Run(context.Background(), c, 3)
	require.NoError(t, err)
	assert.Equal(t, MutationSucceeded, m.State().Status)
}
