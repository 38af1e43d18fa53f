package query

import (
	"context"
)

// Observe keeps a subscriber up to date with key. It fetches once, then refetches
// every time a prefix of key is invalidated or the cache is cleared, passing each
// result to onResult. It runs until ctx ends, the returned stop function is called,
// or the client stops observers of key with StopObserving or Close. onResult is called
// from a single goroutine; an invalidation that arrives while a refetch is running
// causes one more refetch.
func Observe[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error), onResult func(T, error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := c.bus.Subscribe(key.Topic(), 1)

	run := func() {
		v, err := Query(ctx, c, key, fn)
		if ctx.Err() != nil {
			return
		}
		onResult(v, err)
	}

	go func() {
		defer unsubscribe()

		run()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				run()
			}
		}
	}()

	return cancel
}
