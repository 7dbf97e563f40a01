// Package cacheguard is a strongly-consistent cache-aside coordinator on
// top of a Redis-compatible store. It guarantees that at most one caller
// at a time recomputes an expensive value for a given key across a
// cluster ("single-flight", not just within one process), that readers
// observe either the previous value or block until a fresh one commits,
// and that invalidating a key forces the next reader to refresh it even
// while Redis still physically holds the stale entry.
//
// The protocol is a distributed read/write lock implemented with four
// Lua scripts executed atomically inside Redis (GET, SET, DELETE,
// UNLOCK), combined with a deferred-delete mechanism and lock-ownership
// verification. See internal/engine for the implementation.
package cacheguard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/cacheguard/internal/codec"
	"github.com/custodia-labs/cacheguard/internal/engine"
)

// Options is the fixed set of tuning parameters consumed by a Client.
// Start from DefaultOptions and override only what you need.
type Options = engine.Options

// DefaultOptions returns the reference implementation's default tuning:
// Delay=10s, EmptyExpire=60s, LockExpire=3s, LockSleep=100ms,
// RandomExpireAdjustment=0.1.
func DefaultOptions() Options { return engine.DefaultOptions() }

// Codec serializes and deserializes a value of type V to and from bytes
// for storage in Redis. A Client defaults to a JSON codec; supply your
// own (or codec.NewEncrypting, for sensitive values) via NewClientCodec.
type Codec[V any] = codec.Codec[V]

// Loader produces the fresh value for a key on a cache miss or after an
// invalidation. A false present with a nil error is a legitimate
// "this key has no data" result, cached negatively rather than retried.
type Loader[V any] func(ctx context.Context) (value V, present bool, err error)

// MetricsRecorder is the optional observability hook a Client reports
// cache hits, lock contention and loader invocations through. See
// internal/metrics for a Prometheus-backed implementation.
type MetricsRecorder = engine.MetricsRecorder

// Clock supplies the wall-clock second reading and cancellation-aware
// sleep the protocol's lock timestamps and poll backoff are built on.
type Clock = engine.Clock

// The three disjoint failure kinds Fetch and TagAsDeleted can surface.
// Check with errors.Is, since the concrete error wraps additional
// context (the failing operation, the underlying transport error, ...).
var (
	ErrRedis  = engine.ErrRedis
	ErrEncode = engine.ErrEncode
	ErrDecode = engine.ErrDecode
)

// Client coordinates cache-aside access to values of type V stored
// under string keys in Redis.
type Client[V any] struct {
	eng *engine.Engine[V]
}

// NewClient builds a Client using the default JSON codec. rdb may be any
// github.com/redis/go-redis/v9 UniversalClient (single node, sentinel or
// cluster).
func NewClient[V any](rdb redis.UniversalClient, opts Options) *Client[V] {
	return &Client[V]{eng: engine.New[V](rdb, codec.NewJSON[V](), opts)}
}

// NewClientCodec builds a Client using a caller-supplied codec, e.g. for
// a non-JSON wire format or the encrypting decorator in package codec.
func NewClientCodec[V any](rdb redis.UniversalClient, c Codec[V], opts Options) *Client[V] {
	return &Client[V]{eng: engine.New[V](rdb, c, opts)}
}

// Fetch returns the value cached under key, invoking loader to refresh
// it if the entry is absent, expired-for-refresh, or the previous
// owner's lock has itself expired. present reports whether the returned
// value represents data (true) or a cached absent result (false).
//
// At most one caller across the whole cluster executes loader for a
// given key at a time; concurrent callers either observe the previous
// value or block until the fresh one commits.
func (c *Client[V]) Fetch(ctx context.Context, key string, expire time.Duration, loader Loader[V]) (value V, present bool, err error) {
	return c.eng.Fetch(ctx, key, expire, engine.Loader[V](loader))
}

// TagAsDeleted marks key as expired-for-refresh without physically
// removing it: the next Fetch becomes the refresher and concurrent
// Fetch callers wait for its result. The stale value stays in Redis for
// up to Options.Delay seconds, but Fetch does not return it.
func (c *Client[V]) TagAsDeleted(ctx context.Context, key string) error {
	return c.eng.TagAsDeleted(ctx, key)
}
