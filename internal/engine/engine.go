// Package engine implements the lock protocol engine: the read/refresh/
// unlock orchestration layered atop the script executor. It acquires the
// distributed lock, polls while another owner holds it, calls the
// loader, stores the result, and releases the lock on error.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/cacheguard/internal/codec"
)

const locked = "LOCKED"

// Loader produces the fresh value for a key on a cache miss or after an
// invalidation. present reports whether a value exists at all: a false
// value with a nil error is a legitimate "this key has no data" result
// that gets negatively cached, not an error.
type Loader[V any] func(ctx context.Context) (value V, present bool, err error)

// Engine is the generic lock protocol engine for one value type V.
type Engine[V any] struct {
	rdb   redis.UniversalClient
	exec  *Executor
	opts  Options
	codec codec.Codec[V]
	group singleflight.Group
}

// New builds an Engine against rdb using codec c and opts. Panics if
// opts.Delay or opts.LockExpire is zero — callers must start from
// DefaultOptions().
func New[V any](rdb redis.UniversalClient, c codec.Codec[V], opts Options) *Engine[V] {
	opts = opts.withDefaults()
	return &Engine[V]{
		rdb:   rdb,
		exec:  NewExecutor(rdb),
		opts:  opts,
		codec: c,
	}
}

// Fetch returns the value cached under key, refreshing it via loader if
// the entry is absent, expired-for-refresh, or the previous owner's
// lock has itself expired. present reports whether the returned value
// represents data (true) or a cached absent result (false).
func (e *Engine[V]) Fetch(ctx context.Context, key string, expire time.Duration, loader Loader[V]) (value V, present bool, err error) {
	ex := e.effectiveExpire(expire)

	if e.opts.DisableCacheRead {
		return loader(ctx)
	}

	type result struct {
		value   V
		present bool
	}
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		value, present, err := e.strongFetch(ctx, key, ex, loader)
		return result{value: value, present: present}, err
	})
	r := v.(result)
	return r.value, r.present, err
}

// TagAsDeleted marks key as expired-for-refresh: lockUntil is set to 0
// and lockOwner is cleared, so the next Fetch becomes the refresher.
// The stale value field stays in the hash, unread by Fetch, until a
// refresh overwrites it or Redis's TTL reaps the entry after Delay seconds.
func (e *Engine[V]) TagAsDeleted(ctx context.Context, key string) error {
	if e.opts.DisableCacheDelete {
		return nil
	}
	s := scripts()
	_, err := e.exec.Call(ctx, s.del, []string{key}, []interface{}{int64(e.opts.Delay / time.Second)})
	if err != nil {
		return err
	}
	e.opts.Logger.Debug("cacheguard: tagged as deleted", "key", key)
	return nil
}

func (e *Engine[V]) effectiveExpire(expire time.Duration) time.Duration {
	adjustment := e.opts.RandomExpireAdjustment
	if e.opts.Jitter {
		adjustment *= jitterFraction()
	}
	reduction := e.opts.Delay + time.Duration(adjustment*float64(expire))
	ex := expire - reduction
	if ex < 0 {
		ex = 0
	}
	return ex
}

// strongFetch implements the acquire-or-poll path: acquire the lock and
// refresh, or observe another owner holding it and poll for its result.
// Every caller that reaches here — whether it acquires the lock or
// observes another owner holding it — eventually either reads a
// committed value or becomes the refresher itself.
func (e *Engine[V]) strongFetch(ctx context.Context, key string, expire time.Duration, loader Loader[V]) (V, bool, error) {
	var zero V
	owner := strings.ReplaceAll(uuid.New().String(), "-", "")

	r, err := e.luaGet(ctx, key, owner)
	if err != nil {
		return zero, false, err
	}

	for r.kind == lockKindOther {
		e.opts.Logger.Debug("cacheguard: lock held by other owner, polling", "key", key)
		if err := e.opts.Clock.Sleep(ctx, e.opts.LockSleep); err != nil {
			return zero, false, err
		}
		r, err = e.luaGet(ctx, key, owner)
		if err != nil {
			return zero, false, err
		}
	}

	if r.kind == lockKindFree {
		e.opts.Metrics.CacheHit()
		return e.decodeValue(r.value)
	}

	// r.kind == lockKindAcquired: we now own the per-key lock.
	e.opts.Metrics.CacheMiss()
	if r.stolen {
		e.opts.Metrics.LockStolen()
	} else {
		e.opts.Metrics.LockAcquired()
	}
	e.opts.Logger.Debug("cacheguard: acquired refresh lock", "key", key, "owner", owner)
	return e.refresh(ctx, key, expire, owner, loader)
}

// refresh invokes the loader while holding the lock, then commits the
// result (or releases the lock) depending on outcome.
func (e *Engine[V]) refresh(ctx context.Context, key string, expire time.Duration, owner string, loader Loader[V]) (V, bool, error) {
	var zero V

	e.opts.Metrics.LoaderInvoked()
	start := time.Now()
	value, present, err := loader(ctx)
	e.opts.Metrics.LoaderDuration(time.Since(start))

	if err != nil {
		if unlockErr := e.luaUnlock(ctx, key, owner); unlockErr != nil {
			e.opts.Logger.Debug("cacheguard: unlock after loader error also failed", "key", key, "err", unlockErr)
		}
		return zero, false, err
	}

	ex := expire
	if !present {
		ex = e.opts.EmptyExpire
		if e.opts.EmptyExpire == 0 {
			// Fire-and-forget: a concurrent refresher's SET_SCRIPT is the
			// authoritative write; a failed DEL here just means the key
			// lives a little longer than intended.
			_ = e.rdb.Del(ctx, key).Err()
		}
	}

	bytes, encErr := e.encodeValue(value, present)
	if encErr != nil {
		return zero, false, newEncodeError(encErr)
	}

	if err := e.luaSet(ctx, key, bytes, owner, ex); err != nil {
		// The loader's result is lost from the cache, but the caller
		// still receives it: a failed commit must not turn a successful
		// load into a Fetch error.
		e.opts.Logger.Debug("cacheguard: commit failed, result not cached", "key", key, "err", err)
	}

	return value, present, nil
}

// lockKind distinguishes the three shapes GET_SCRIPT's second return
// element can take; never compared by raw string beyond the "LOCKED"
// sentinel check itself.
type lockKind int

const (
	lockKindFree     lockKind = iota // previous owner committed, lock cleared
	lockKindAcquired                 // we now hold the lock (fresh or stolen)
	lockKindOther                    // another owner holds a live lock
)

type lockResult struct {
	kind   lockKind
	stolen bool        // a cached value was present when the lock was taken
	value  interface{} // nil, or the bulk-string payload bytes
}

func (e *Engine[V]) luaGet(ctx context.Context, key string, owner string) (lockResult, error) {
	s := scripts()
	now := e.opts.Clock.Now()
	deadline := now + int64(e.opts.LockExpire/time.Second)

	res, err := e.exec.Call(ctx, s.get, []string{key}, []interface{}{now, deadline, owner})
	if err != nil {
		return lockResult{}, err
	}

	row, ok := res.([]interface{})
	if !ok || len(row) != 2 {
		return lockResult{}, newRedisError("GET", fmt.Errorf("unexpected GET_SCRIPT response shape: %#v", res))
	}

	value, lockUntil := row[0], row[1]
	if lockUntil == nil {
		return lockResult{kind: lockKindFree, value: value}, nil
	}
	if s, ok := lockUntil.(string); ok && s == locked {
		return lockResult{kind: lockKindAcquired, stolen: value != nil, value: value}, nil
	}
	return lockResult{kind: lockKindOther, value: value}, nil
}

func (e *Engine[V]) luaSet(ctx context.Context, key string, value []byte, owner string, expire time.Duration) error {
	s := scripts()
	_, err := e.exec.Call(ctx, s.set, []string{key}, []interface{}{value, owner, int64(expire / time.Second)})
	return err
}

func (e *Engine[V]) luaUnlock(ctx context.Context, key string, owner string) error {
	s := scripts()
	_, err := e.exec.Call(ctx, s.unlock, []string{key}, []interface{}{owner, int64(e.opts.LockExpire / time.Second)})
	return err
}

// Wire envelope for a cached entry: a single presence byte followed by
// the codec's payload when present. This is what lets a negatively
// cached "no data" result live in the same value field as a real one,
// distinct from the field being entirely absent.
const (
	entryAbsent  byte = 0x00
	entryPresent byte = 0x01
)

func (e *Engine[V]) encodeValue(v V, present bool) ([]byte, error) {
	if !present {
		return []byte{entryAbsent}, nil
	}
	payload, err := e.codec.Encode(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{entryPresent}, payload...), nil
}

func (e *Engine[V]) decodeValue(raw interface{}) (V, bool, error) {
	var zero V
	if raw == nil {
		return zero, false, nil
	}

	var b []byte
	switch t := raw.(type) {
	case string:
		b = []byte(t)
	case []byte:
		b = t
	default:
		return zero, false, newRedisError("GET", fmt.Errorf("unexpected value shape: %#v", raw))
	}

	if len(b) == 0 {
		return zero, false, newRedisError("GET", fmt.Errorf("empty cached entry"))
	}

	switch b[0] {
	case entryAbsent:
		return zero, false, nil
	case entryPresent:
		v, err := e.codec.Decode(b[1:])
		if err != nil {
			return zero, false, newDecodeError(err)
		}
		return v, true, nil
	default:
		return zero, false, newRedisError("GET", fmt.Errorf("unknown entry tag %x", b[0]))
	}
}

// jitterFraction draws a uniform [0,1) fraction for the randomized
// reading of RandomExpireAdjustment. Split out so tests can substitute
// determinism without faking math/rand/v2's global source.
var jitterFraction = defaultJitterFraction

func defaultJitterFraction() float64 {
	return rand.Float64()
}
