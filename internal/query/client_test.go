package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdbook/herdbook/internal/eventbus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// countingFetch returns a fetch function that reports how often it ran.
func countingFetch[T any](v T) (func(context.Context) (T, error), *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (T, error) {
		calls.Add(1)
		return v, nil
	}, &calls
}

var animals = NewKeys("animals")

func TestQueryFreshHitSkipsFetch(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	ctx := context.Background()
	fetch, calls := countingFetch([]string{"A-1", "A-2"})

	v, err := Query(ctx, c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2"}, v)

	v, err = Query(ctx, c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2"}, v)
	assert.Equal(t, int32(1), calls.Load())

	st := c.State(animals.Lists())
	assert.Equal(t, StatusFresh, st.Status)
	assert.Equal(t, 1, st.FetchCount)
	assert.True(t, st.HasData)
}

func TestZeroStaleTimeAlwaysRefetches(t *testing.T) {
	c := NewClient()
	ctx := context.Background()
	fetch, calls := countingFetch(1)

	for i := 0; i < 3; i++ {
		_, err := Query(ctx, c, animals.Detail(1), fetch)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, StatusStale, c.State(animals.Detail(1)).Status)
}

func TestStaleTimeExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithStaleTime(30*time.Second), withClock(clock.Now))
	ctx := context.Background()
	fetch, calls := countingFetch("x")

	_, err := Query(ctx, c, animals.Lists(), fetch)
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	_, err = Query(ctx, c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	assert.Equal(t, StatusStale, c.State(animals.Lists()).Status)
	_, err = Query(ctx, c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConcurrentFetchesCoalesce(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Query(context.Background(), c, animals.Lists(), fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool {
		return c.State(animals.Lists()).Status == StatusFetching
	}, time.Second, time.Millisecond)
	// give the remaining callers a chance to join the in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestInvalidateMarksPrefixStale(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	ctx := context.Background()

	listFetch, listCalls := countingFetch("list")
	dryFetch, dryCalls := countingFetch("dry")
	detailFetch, detailCalls := countingFetch("detail")

	for i := 0; i < 2; i++ {
		_, _ = Query(ctx, c, animals.Lists(), listFetch)
		_, _ = Query(ctx, c, animals.List("status", "dry"), dryFetch)
		_, _ = Query(ctx, c, animals.Detail(5), detailFetch)
	}

	c.Invalidate(animals.Lists())

	assert.Equal(t, StatusStale, c.State(animals.Lists()).Status)
	assert.Equal(t, StatusStale, c.State(animals.List("status", "dry")).Status)
	assert.Equal(t, StatusFresh, c.State(animals.Detail(5)).Status)

	// invalidation never refetches on its own
	assert.Equal(t, int32(1), listCalls.Load())

	_, _ = Query(ctx, c, animals.Lists(), listFetch)
	_, _ = Query(ctx, c, animals.List("status", "dry"), dryFetch)
	_, _ = Query(ctx, c, animals.Detail(5), detailFetch)
	assert.Equal(t, int32(2), listCalls.Load())
	assert.Equal(t, int32(2), dryCalls.Load())
	assert.Equal(t, int32(1), detailCalls.Load())

	// invalidating twice is the same as once
	c.Invalidate(animals.Detail(5))
	c.Invalidate(animals.Detail(5))
	_, _ = Query(ctx, c, animals.Detail(5), detailFetch)
	_, _ = Query(ctx, c, animals.Detail(5), detailFetch)
	assert.Equal(t, int32(2), detailCalls.Load())
}

func TestInvalidateUnknownPrefixIsHarmless(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	c.Invalidate(NewKeys("users").Detail(99))
	c.Invalidate()
	assert.Equal(t, StatusIdle, c.State(NewKeys("users").Detail(99)).Status)
}

func TestInvalidateDuringFetchLeavesResultStale(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "old", nil
		}
		return "new", nil
	}

	done := make(chan string)
	go func() {
		v, _ := Query(context.Background(), c, animals.Lists(), fetch)
		done <- v
	}()

	<-started
	c.Invalidate(animals.All())
	close(release)
	assert.Equal(t, "old", <-done)

	assert.Equal(t, StatusStale, c.State(animals.Lists()).Status)
	v, err := Query(context.Background(), c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLateCallerDoesNotJoinInvalidatedFetch(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "old", nil
		}
		return "new", nil
	}

	done := make(chan string)
	go func() {
		v, _ := Query(context.Background(), c, animals.Lists(), fetch)
		done <- v
	}()

	<-started
	c.Invalidate(animals.Lists())

	v, err := Query(context.Background(), c, animals.Lists(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(release)
	assert.Equal(t, "old", <-done)

	// the older result does not replace the newer one
	got, ok := Get[string](c, animals.Lists())
	assert.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, StatusFresh, c.State(animals.Lists()).Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchErrorState(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	ctx := context.Background()
	boom := errors.New("boom")
	fail := true
	fetch := func(context.Context) (int, error) {
		if fail {
			return 0, boom
		}
		return 7, nil
	}

	_, err := Query(ctx, c, animals.Detail(1), fetch)
	assert.ErrorIs(t, err, boom)
	st := c.State(animals.Detail(1))
	assert.Equal(t, StatusError, st.Status)
	assert.ErrorIs(t, st.Err, boom)
	assert.False(t, st.HasData)

	fail = false
	v, err := Query(ctx, c, animals.Detail(1), fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	st = c.State(animals.Detail(1))
	assert.Equal(t, StatusFresh, st.Status)
	assert.Equal(t, 2, st.FetchCount)
	assert.NoError(t, st.Err)
}

func TestFailedRefetchKeepsPreviousData(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	_, err := Query(ctx, c, animals.Detail(2), func(context.Context) (string, error) { return "cow", nil })
	require.NoError(t, err)
	_, err = Query(ctx, c, animals.Detail(2), func(context.Context) (string, error) { return "", errors.New("offline") })
	require.Error(t, err)

	v, ok := Get[string](c, animals.Detail(2))
	assert.True(t, ok)
	assert.Equal(t, "cow", v)
	assert.Equal(t, StatusError, c.State(animals.Detail(2)).Status)
}

func TestCallerCancellationDoesNotCancelSharedFetch(t *testing.T) {
	c := NewClient(WithStaleTime(time.Hour))
	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	fetch := func(ctx context.Context) (int, error) {
		<-release
		fetchCtxErr.Store(ctx.Err() == nil)
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := Query(ctx, c, animals.Lists(), fetch)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		return c.State(animals.Lists()).Status == StatusFetching
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return c.State(animals.Lists()).Status == StatusFresh
	}, time.Second, time.Millisecond)
	assert.Equal(t, true, fetchCtxErr.Load())
}

func TestSetAndGetQueryData(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	ctx := context.Background()

	_, ok := c.GetQueryData(animals.Detail(3))
	assert.False(t, ok)

	c.SetQueryData(animals.Detail(3), "hydrated")
	v, ok := Get[string](c, animals.Detail(3))
	assert.True(t, ok)
	assert.Equal(t, "hydrated", v)

	fetch, calls := countingFetch("fetched")
	got, err := Query(ctx, c, animals.Detail(3), fetch)
	require.NoError(t, err)
	assert.Equal(t, "hydrated", got)
	assert.Zero(t, calls.Load())

	_, ok = Get[int](c, animals.Detail(3))
	assert.False(t, ok)
}

func TestQueryRefetchesOnTypeMismatch(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	c.SetQueryData(animals.Detail(3), "a string")

	v, err := Query(context.Background(), c, animals.Detail(3), func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRemoveAndClear(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	c.SetQueryData(animals.Lists(), 1)
	c.SetQueryData(animals.Detail(1), 2)
	c.SetQueryData(NewKeys("milking").Lists(), 3)

	c.Remove(animals.Lists())
	_, ok := c.GetQueryData(animals.Lists())
	assert.False(t, ok)
	_, ok = c.GetQueryData(animals.Detail(1))
	assert.True(t, ok)

	c.Clear()
	for _, k := range []Key{animals.Detail(1), NewKeys("milking").Lists()} {
		_, ok := c.GetQueryData(k)
		assert.False(t, ok, k.String())
		assert.Equal(t, StatusIdle, c.State(k).Status)
	}
}

func TestClearDropsInFlightResult(t *testing.T) {
	c := NewClient(WithStaleTime(time.Minute))
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = Query(context.Background(), c, NewKeys("auth").Sub("me"), func(context.Context) (string, error) {
			close(started)
			<-release
			return "previous user", nil
		})
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	_, ok := c.GetQueryData(NewKeys("auth").Sub("me"))
	assert.False(t, ok)
}

func TestInvalidatePublishesEvents(t *testing.T) {
	bus := eventbus.New()
	c := NewClient(WithEventBus(bus))
	assert.Same(t, bus, c.Bus())

	events, unsubscribe := bus.Subscribe(animals.List("status", "dry").Topic(), 4)
	defer unsubscribe()

	c.Invalidate(animals.Lists(), animals.Detail(1))

	select {
	case e := <-events:
		inv, ok := e.Data.(InvalidationEvent)
		require.True(t, ok)
		assert.True(t, inv.Prefix.Equal(animals.Lists()))
	case <-time.After(time.Second):
		t.Fatal("expected an invalidation event")
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "fresh", StatusFresh.String())
	assert.Equal(t, "unknown", Status(99).String())
	assert.Equal(t, "in-flight", MutationInFlight.String())
}
