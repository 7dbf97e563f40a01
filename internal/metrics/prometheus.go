// Package metrics provides a Prometheus-backed implementation of the
// engine's MetricsRecorder hook.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements the engine's MetricsRecorder interface with
// Prometheus counters and a histogram, registered against a caller-owned
// registry so multiple cacheguard clients can share one /metrics
// endpoint without collisions.
type Recorder struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	lockAcquired   prometheus.Counter
	lockStolen     prometheus.Counter
	loaderInvoked  prometheus.Counter
	loaderDuration prometheus.Histogram
}

// NewRecorder creates and registers the cacheguard metric family under
// reg, labelled by name (e.g. the cache namespace this client serves).
func NewRecorder(reg prometheus.Registerer, name string) *Recorder {
	r := &Recorder{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cacheguard_cache_hits_total",
			Help:        "Fetch calls served without invoking the loader.",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cacheguard_cache_misses_total",
			Help:        "Fetch calls that invoked the loader.",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
		lockAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cacheguard_lock_acquired_total",
			Help:        "Times this client acquired the per-key refresh lock on an entry with no cached value.",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
		lockStolen: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cacheguard_lock_stolen_total",
			Help:        "Times this client acquired the per-key refresh lock on an entry that still held a cached value (an expired lock or a tag-deleted entry).",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
		loaderInvoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cacheguard_loader_invocations_total",
			Help:        "Times the loader function was actually called.",
			ConstLabels: prometheus.Labels{"cache": name},
		}),
		loaderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "cacheguard_loader_duration_seconds",
			Help:        "Wall-clock duration of loader invocations.",
			ConstLabels: prometheus.Labels{"cache": name},
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.hits, r.misses, r.lockAcquired, r.lockStolen, r.loaderInvoked, r.loaderDuration)

	return r
}

func (r *Recorder) CacheHit()         { r.hits.Inc() }
func (r *Recorder) CacheMiss()        { r.misses.Inc() }
func (r *Recorder) LockAcquired()     { r.lockAcquired.Inc() }
func (r *Recorder) LockStolen()       { r.lockStolen.Inc() }
func (r *Recorder) LoaderInvoked()    { r.loaderInvoked.Inc() }
func (r *Recorder) LoaderDuration(d time.Duration) {
	r.loaderDuration.Observe(d.Seconds())
}
