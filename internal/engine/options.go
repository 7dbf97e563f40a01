package engine

import (
	"log/slog"
	"time"
)

// Options holds the fixed set of tuning parameters consumed by the lock
// protocol engine. Field names and defaults mirror the reference
// implementation field-for-field.
type Options struct {
	// Delay is the grace period applied on TagAsDeleted; also subtracted
	// from the effective expire written by a fresh refresh. Default 10s.
	Delay time.Duration

	// EmptyExpire is the TTL for cached absent results. Zero means
	// delete the key outright instead of caching the absent marker.
	// Default 60s.
	EmptyExpire time.Duration

	// LockExpire is the maximum time a refresh may hold the lock; should
	// exceed worst-case loader latency. Default 3s.
	LockExpire time.Duration

	// LockSleep is the sleep interval between lock-poll retries.
	// Default 100ms.
	LockSleep time.Duration

	// RandomExpireAdjustment is the fraction by which the nominal expire
	// is reduced to stagger TTLs across keys. Default 0.1.
	RandomExpireAdjustment float64

	// Jitter selects between the two valid readings of
	// RandomExpireAdjustment: false (default) applies it as a fixed
	// deterministic reduction; true draws the reduction uniformly from
	// [0, RandomExpireAdjustment*expire] per call.
	Jitter bool

	// DisableCacheRead bypasses Redis entirely on Fetch, returning the
	// loader's result directly. Downgrade mode for Redis outages.
	DisableCacheRead bool

	// DisableCacheDelete suppresses TagAsDeleted, returning success
	// without contacting Redis. Downgrade mode for Redis outages.
	DisableCacheDelete bool

	// Clock supplies time readings and sleeps; defaults to the system
	// clock if nil.
	Clock Clock

	// Logger receives structured debug events when the engine polls,
	// acquires the refresh lock, tags a key as deleted, or fails to commit
	// or unlock; defaults to slog.Default() if nil.
	Logger *slog.Logger

	// Metrics receives counters for cache hits/misses, lock contention
	// and loader invocations; defaults to a no-op recorder if nil.
	Metrics MetricsRecorder
}

// DefaultOptions returns the reference implementation's default tuning.
func DefaultOptions() Options {
	return Options{
		Delay:                  10 * time.Second,
		EmptyExpire:            60 * time.Second,
		LockExpire:             3 * time.Second,
		LockSleep:              100 * time.Millisecond,
		RandomExpireAdjustment: 0.1,
	}
}

// withDefaults fills in the Clock, Logger and Metrics fields left nil by
// the caller, and panics on the same invalid-configuration cases the
// reference implementation rejects.
func (o Options) withDefaults() Options {
	if o.Delay == 0 || o.LockExpire == 0 {
		panic("cacheguard: options error: Delay and LockExpire must not be 0, start from DefaultOptions()")
	}
	if o.Clock == nil {
		o.Clock = NewSystemClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	return o
}

// MetricsRecorder is the optional observability hook consumed by the
// engine. A no-op implementation is used when Options.Metrics is nil.
type MetricsRecorder interface {
	CacheHit()
	CacheMiss()
	LockAcquired()
	LockStolen()
	LoaderInvoked()
	LoaderDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit()      {}
func (noopMetrics) CacheMiss()     {}
func (noopMetrics) LockAcquired()  {}
func (noopMetrics) LockStolen()    {}
func (noopMetrics) LoaderInvoked() {}
func (noopMetrics) LoaderDuration(time.Duration) {}
