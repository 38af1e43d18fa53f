// Package query implements a client-side cache for server data. Cached entries are
// addressed by hierarchical keys; fetches of the same key are coalesced; entries go
// stale on a timer or when a mutation invalidates a key prefix; observers refetch
// when something they watch is invalidated.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/herdbook/herdbook/internal/eventbus"
)

// Key identifies a cached query. It is an ordered sequence of segments, each either
// a string or an int64. A key is a prefix of another when its segments match the
// other's leading segments; invalidation and removal work on prefixes.
type Key struct {
	segs []any
}

// NewKey builds a key. Integer segments of any width are stored as int64, strings
// as-is, and anything else through fmt.Sprint.
func NewKey(segs ...any) Key {
	k := Key{segs: make([]any, 0, len(segs))}
	for _, s := range segs {
		k.segs = append(k.segs, normalizeSegment(s))
	}
	return k
}

func normalizeSegment(s any) any {
	switch v := s.(type) {
	case string:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Append returns a new key with segs added. k is not modified.
func (k Key) Append(segs ...any) Key {
	out := Key{segs: make([]any, 0, len(k.segs)+len(segs))}
	out.segs = append(out.segs, k.segs...)
	for _, s := range segs {
		out.segs = append(out.segs, normalizeSegment(s))
	}
	return out
}

// Len returns the number of segments.
func (k Key) Len() int {
	return len(k.segs)
}

// Segments returns a copy of the segments.
func (k Key) Segments() []any {
	return append([]any(nil), k.segs...)
}

// HasPrefix reports whether prefix matches the leading segments of k. The empty key
// is a prefix of every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.segs) > len(k.segs) {
		return false
	}
	for i, s := range prefix.segs {
		if k.segs[i] != s {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same segments.
func (k Key) Equal(other Key) bool {
	return len(k.segs) == len(other.segs) && k.HasPrefix(other)
}

// String renders the key for logs, e.g. [animals detail 7].
func (k Key) String() string {
	parts := make([]string, len(k.segs))
	for i, s := range k.segs {
		parts[i] = fmt.Sprint(s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Topic encodes the key as an event bus topic. Distinct keys always have distinct
// topics, and a key prefix encodes to a topic prefix. The empty key encodes to the
// bus wildcard.
func (k Key) Topic() string {
	if len(k.segs) == 0 {
		return eventbus.Wildcard
	}
	parts := make([]string, len(k.segs))
	for i, s := range k.segs {
		parts[i] = encodeSegment(s)
	}
	return strings.Join(parts, eventbus.Separator)
}

// prefixTopics returns the topics of every prefix of k, from the empty key to k.
func (k Key) prefixTopics() []string {
	topics := make([]string, 0, len(k.segs)+1)
	topics = append(topics, eventbus.Wildcard)
	var b strings.Builder
	for i, s := range k.segs {
		if i > 0 {
			b.WriteString(eventbus.Separator)
		}
		b.WriteString(encodeSegment(s))
		topics = append(topics, b.String())
	}
	return topics
}

// encodeSegment escapes strings so they cannot contain a separator or act as a
// wildcard, and marks integers with '#', which escaping never produces.
func encodeSegment(s any) string {
	switch v := s.(type) {
	case int64:
		return "#" + strconv.FormatInt(v, 10)
	case string:
		return strings.ReplaceAll(url.PathEscape(v), eventbus.Wildcard, "%2A")
	default:
		return url.PathEscape(fmt.Sprint(v))
	}
}

// Keys builds the keys of one resource:
//
//	All()            [resource]
//	Lists()          [resource list]
//	List(params...)  [resource list params...]
//	Details()        [resource detail]
//	Detail(id)       [resource detail id]
//	Sub(q, params...) [resource q params...]
//
// Invalidating All() covers every key of the resource; invalidating Lists() covers
// every filtered list but no detail.
type Keys struct {
	resource string
}

// NewKeys returns the key factory for resource.
func NewKeys(resource string) Keys {
	return Keys{resource: resource}
}

// Resource returns the resource name.
func (k Keys) Resource() string { return k.resource }

func (k Keys) All() Key { return NewKey(k.resource) }

func (k Keys) Lists() Key { return NewKey(k.resource, "list") }

func (k Keys) List(params ...any) Key { return k.Lists().Append(params...) }

func (k Keys) Details() Key { return NewKey(k.resource, "detail") }

func (k Keys) Detail(id any) Key { return k.Details().Append(id) }

// Sub returns a named sub-query such as [animals status dry] or [animals analytics].
func (k Keys) Sub(qualifier string, params ...any) Key {
	return NewKey(k.resource, qualifier).Append(params...)
}
