// Package metrics exposes the engine's runtime counters as Prometheus
// instruments instead of a point-in-time snapshot struct.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector groups every counter and gauge the engine and driver update as
// they run. A nil *Collector is safe to call methods on: every method is a
// no-op in that case, so wiring metrics in is always optional.
type Collector struct {
	Commits        prometheus.Counter
	Rollbacks      prometheus.Counter
	Checkpoints    prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	JournalBytes   prometheus.Gauge
}

// NewCollector builds a Collector and registers its instruments with reg.
// Pass prometheus.DefaultRegisterer for the global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "engine",
			Name:      "commits_total",
			Help:      "Number of transactions committed.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "engine",
			Name:      "rollbacks_total",
			Help:      "Number of transactions rolled back.",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "engine",
			Name:      "checkpoints_total",
			Help:      "Number of journal checkpoints performed.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of block cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of block cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blabber",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of blocks evicted from the cache, including stolen dirty blocks.",
		}),
		JournalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blabber",
			Subsystem: "journal",
			Name:      "size_bytes",
			Help:      "Approximate size of the journal file.",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.Commits, c.Rollbacks, c.Checkpoints, c.CacheHits, c.CacheMisses, c.CacheEvictions, c.JournalBytes)
	}

	return c
}

func (c *Collector) incCommit()   { if c != nil { c.Commits.Inc() } }
func (c *Collector) incRollback() { if c != nil { c.Rollbacks.Inc() } }
func (c *Collector) incCheckpoint() { if c != nil { c.Checkpoints.Inc() } }
func (c *Collector) incCacheHit()    { if c != nil { c.CacheHits.Inc() } }
func (c *Collector) incCacheMiss()   { if c != nil { c.CacheMisses.Inc() } }
func (c *Collector) incCacheEvict()  { if c != nil { c.CacheEvictions.Inc() } }

// IncCommit records a committed transaction.
func (c *Collector) IncCommit() { c.incCommit() }

// IncRollback records a rolled-back transaction.
func (c *Collector) IncRollback() { c.incRollback() }

// IncCheckpoint records a journal checkpoint.
func (c *Collector) IncCheckpoint() { c.incCheckpoint() }

// IncCacheHit records a block cache hit.
func (c *Collector) IncCacheHit() { c.incCacheHit() }

// IncCacheMiss records a block cache miss.
func (c *Collector) IncCacheMiss() { c.incCacheMiss() }

// IncCacheEviction records a block evicted from the cache.
func (c *Collector) IncCacheEviction() { c.incCacheEvict() }

// SetJournalBytes records the journal's approximate current size.
func (c *Collector) SetJournalBytes(n int64) {
	if c != nil {
		c.JournalBytes.Set(float64(n))
	}
}
