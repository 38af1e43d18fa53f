package query

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/herdbook/herdbook/internal/eventbus"
)

const (
	DefaultGCTime     = 5 * time.Minute
	DefaultMaxEntries = 10_000
)

// FetchFunc loads the data for one key. The context it receives is detached from
// the cancellation of any single caller.
type FetchFunc func(ctx context.Context) (any, error)

// Status is the lifecycle state of one cached key.
type Status int

const (
	StatusIdle     Status = iota // never fetched, or evicted
	StatusFetching               // a fetch is in flight
	StatusFresh                  // data is current
	StatusStale                  // data exists but must be refetched on next access
	StatusError                  // the last fetch failed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// QueryState is a snapshot of one key.
type QueryState struct {
	Status     Status
	HasData    bool
	UpdatedAt  time.Time
	FetchCount int
	Err        error
}

// InvalidationEvent is published on the event bus for every invalidated prefix.
type InvalidationEvent struct {
	Prefix Key
}

// ClearEvent is published on eventbus.Wildcard when the whole cache is dropped.
type ClearEvent struct{}

// entry is stored in the cache and never mutated after it is stored.
type entry struct {
	key        Key
	value      any
	hasValue   bool
	err        error
	updatedAt  time.Time
	seq        uint64 // clock value when the data was requested
	fetchCount int
}

// Client is the query cache. It is safe for concurrent use.
type Client struct {
	staleTime  time.Duration
	gcTime     time.Duration
	maxEntries int
	bus        *eventbus.EventBus
	now        func() time.Time

	entries *otter.Cache[string, *entry]
	group   singleflight.Group

	mu       sync.Mutex
	clock    uint64            // advanced by every invalidation
	gens     map[string]uint64 // prefix topic -> clock at its last invalidation
	index    map[string]Key    // topics currently stored in entries
	inflight map[string]int
	epoch    uint64 // advanced by Clear; fetches from an older epoch are dropped
}

// Option configures a Client.
type Option func(*Client)

// WithStaleTime sets how long fetched data counts as fresh. Zero means data is
// stale as soon as it arrives, so every read refetches.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// WithGCTime sets how long an entry is kept after it was written.
func WithGCTime(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithMaxEntries bounds the number of cached keys.
func WithMaxEntries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithEventBus publishes invalidations on bus instead of a private one.
func WithEventBus(bus *eventbus.EventBus) Option {
	return func(c *Client) {
		if bus != nil {
			c.bus = bus
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates an empty query cache.
func NewClient(opts ...Option) *Client {
	c := &Client{
		gcTime:     DefaultGCTime,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		gens:       make(map[string]uint64),
		index:      make(map[string]Key),
		inflight:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = eventbus.New()
	}
	c.entries = otter.Must(&otter.Options[string, *entry]{
		MaximumSize:      c.maxEntries,
		ExpiryCalculator: otter.ExpiryCreating[string, *entry](c.gcTime),
	})
	initMetrics()
	return c
}

// Bus returns the event bus invalidations are published on.
func (c *Client) Bus() *eventbus.EventBus {
	return c.bus
}

// StaleTime returns the configured stale time.
func (c *Client) StaleTime() time.Duration {
	return c.staleTime
}

// Fetch returns the cached data for key when it is fresh and otherwise calls fn.
// Concurrent callers for the same key share one call of fn. If ctx ends first the
// caller gets ctx.Err() while the shared fetch keeps running for the others.
func (c *Client) Fetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	topic := key.Topic()
	logger := log.Ctx(ctx).With().Str("query", key.String()).Logger()

	if e, ok := c.lookup(topic); ok && c.isFresh(key, e) {
		recordFetch(ctx, resultHit)
		logger.Debug().Msg("query cache hit")
		return e.value, nil
	}

	ch := c.group.DoChan(c.flightKey(key, topic), func() (any, error) {
		seq, epoch := c.beginFetch(topic)
		defer c.endFetch(topic)

		start := time.Now()
		v, err := fn(context.WithoutCancel(ctx))
		recordDuration(ctx, time.Since(start))

		c.store(key, topic, seq, epoch, v, err)
		if err != nil {
			recordFetch(ctx, resultError)
			logger.Debug().Err(err).Msg("query fetch failed")
		} else {
			recordFetch(ctx, resultMiss)
			logger.Debug().Msg("query fetched")
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			recordFetch(ctx, resultShared)
		}
		return res.Val, res.Err
	}
}

// Query is the typed form of Fetch.
func Query[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	fetch := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	v, err := c.Fetch(ctx, key, fetch)
	if err != nil {
		return zero, err
	}
	if out, ok := v.(T); ok || v == nil {
		return out, nil
	}

	// hydrated with another type
	c.Remove(key)
	v, err = c.Fetch(ctx, key, fetch)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("query %s: cached %T is not %T", key, v, zero)
	}
	return out, nil
}

// GetQueryData returns whatever data is cached for key, fresh or not.
func (c *Client) GetQueryData(key Key) (any, bool) {
	e, ok := c.lookup(key.Topic())
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Get is the typed form of GetQueryData.
func Get[T any](c *Client, key Key) (T, bool) {
	v, ok := c.GetQueryData(key)
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// SetQueryData stores v under key as freshly fetched data.
func (c *Client) SetQueryData(key Key, v any) {
	topic := key.Topic()

	c.mu.Lock()
	prev, _ := c.entries.GetEntry(topic)
	fetchCount := 0
	if prev.Value != nil {
		fetchCount = prev.Value.fetchCount
	}
	e := &entry{
		key:        key,
		value:      v,
		hasValue:   true,
		updatedAt:  c.now(),
		seq:        c.clock,
		fetchCount: fetchCount,
	}
	c.put(topic, e)
	c.mu.Unlock()
}

// Invalidate marks every cached key starting with one of prefixes as stale and
// notifies observers. It does not refetch and does not wait for anything.
func (c *Client) Invalidate(prefixes ...Key) {
	if len(prefixes) == 0 {
		return
	}

	c.mu.Lock()
	for _, p := range prefixes {
		c.clock++
		c.gens[p.Topic()] = c.clock
	}
	c.mu.Unlock()

	for _, p := range prefixes {
		n := c.bus.Publish(p.Topic(), InvalidationEvent{Prefix: p})
		recordInvalidation(context.Background())
		log.Debug().Str("prefix", p.String()).Int("observers", n).Msg("query invalidated")
	}
}

// Remove drops every cached key starting with prefix. In-flight fetches for those
// keys still complete and store their result.
func (c *Client) Remove(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, k := range c.index {
		if k.HasPrefix(prefix) {
			c.entries.Invalidate(topic)
			delete(c.index, topic)
		}
	}
}

// Clear drops every entry and tells every observer to refetch. Fetches in flight
// when Clear is called do not store their results.
func (c *Client) Clear() {
	c.mu.Lock()
	for topic := range c.index {
		c.entries.Invalidate(topic)
	}
	c.index = make(map[string]Key)
	c.gens = make(map[string]uint64)
	c.epoch++
	c.mu.Unlock()

	n := c.bus.Publish(eventbus.Wildcard, ClearEvent{})
	log.Debug().Int("observers", n).Msg("query cache cleared")
}

// StopObserving ends every observer of a key starting with prefix. Cached data
// is left alone.
func (c *Client) StopObserving(prefix Key) {
	c.bus.CloseAllUnder(prefix.Topic())
}

// Close ends every observer. The cache stays usable for plain queries.
func (c *Client) Close() {
	c.bus.Shutdown()
}

// State reports the lifecycle state of key.
func (c *Client) State(key Key) QueryState {
	topic := key.Topic()

	c.mu.Lock()
	fetching := c.inflight[topic] > 0
	c.mu.Unlock()

	e, ok := c.lookup(topic)
	if !ok {
		if fetching {
			return QueryState{Status: StatusFetching}
		}
		return QueryState{Status: StatusIdle}
	}

	st := QueryState{
		HasData:    e.hasValue,
		UpdatedAt:  e.updatedAt,
		FetchCount: e.fetchCount,
		Err:        e.err,
	}
	switch {
	case fetching:
		st.Status = StatusFetching
	case e.err != nil:
		st.Status = StatusError
	case c.isFresh(key, e):
		st.Status = StatusFresh
	default:
		st.Status = StatusStale
	}
	return st
}

func (c *Client) lookup(topic string) (*entry, bool) {
	got, ok := c.entries.GetEntry(topic)
	if !ok {
		c.mu.Lock()
		delete(c.index, topic)
		c.mu.Unlock()
		return nil, false
	}
	return got.Value, true
}

func (c *Client) isFresh(key Key, e *entry) bool {
	if !e.hasValue || e.err != nil {
		return false
	}
	if c.staleTime <= 0 || c.now().Sub(e.updatedAt) >= c.staleTime {
		return false
	}
	return !c.invalidatedSince(key, e.seq)
}

// invalidatedSince reports whether any prefix of key was invalidated after seq.
// The cost depends on the key length only.
func (c *Client) invalidatedSince(key Key, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range key.prefixTopics() {
		if c.gens[t] > seq {
			return true
		}
	}
	return false
}

// flightKey names the singleflight call for key. It changes whenever key is
// invalidated or the cache is cleared, so such fetches are never joined by later
// callers.
func (c *Client) flightKey(key Key, topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest uint64
	for _, t := range key.prefixTopics() {
		if g := c.gens[t]; g > latest {
			latest = g
		}
	}
	return topic + "@" + strconv.FormatUint(c.epoch, 10) + "." + strconv.FormatUint(latest, 10)
}

func (c *Client) beginFetch(topic string) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[topic]++
	return c.clock, c.epoch
}

func (c *Client) endFetch(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[topic]--
	if c.inflight[topic] <= 0 {
		delete(c.inflight, topic)
	}
}

func (c *Client) store(key Key, topic string, seq, epoch uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return
	}

	prev, _ := c.entries.GetEntry(topic)
	if p := prev.Value; p != nil && p.seq > seq && p.hasValue && p.err == nil {
		// a later fetch or SetQueryData already stored newer data
		return
	}
	e := &entry{key: key, seq: seq, updatedAt: c.now(), fetchCount: 1}
	if prev.Value != nil {
		e.fetchCount = prev.Value.fetchCount + 1
	}
	if err != nil {
		e.err = err
		if prev.Value != nil {
			e.value, e.hasValue = prev.Value.value, prev.Value.hasValue
			e.updatedAt = prev.Value.updatedAt
		}
	} else {
		e.value, e.hasValue = v, true
	}
	c.put(topic, e)
}

// put replaces the entry for topic, restarting its expiry. Callers hold c.mu.
func (c *Client) put(topic string, e *entry) {
	c.entries.Invalidate(topic)
	c.entries.Set(topic, e)
	c.index[topic] = e.key
}
