// Package observability exports the counters and histograms the cache and
// similarity subsystems require, backed by the real Prometheus client rather than a
// hand-rolled registry — grounded on the metrics/prom adapter pattern from
// the shardcache example, generalized from one cache's hit/miss/eviction
// trio to the full cachify metric surface.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus-backed registry for the orchestrator, the
// backplane, and the similarity subsystem.
type Metrics struct {
	CacheHitTotal    *prometheus.CounterVec // layer=L1|L2|stale
	CacheMissTotal   prometheus.Counter
	CacheSetTotal    prometheus.Counter
	CacheRemoveTotal prometheus.Counter
	StaleServed      prometheus.Counter
	SoftTimeoutTotal prometheus.Counter
	HardTimeoutTotal prometheus.Counter
	FailsafeUsed     prometheus.Counter
	GetDuration      prometheus.Histogram

	SimilarityHit        prometheus.Counter
	SimilarityMiss        prometheus.Counter
	SimilarityCandidates prometheus.Histogram
	SimilarityBestScore  prometheus.Histogram

	BackplanePublished prometheus.Counter
	BackplaneDelivered prometheus.Counter
	BackplaneDropped   *prometheus.CounterVec // reason=decode|version|empty_src|echo
}

// New constructs and registers the metric family against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry; pass nil in production to register against
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := "cachify"

	m := &Metrics{
		CacheHitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_hit_total", Help: "Cache hits by layer",
		}, []string{"layer"}),
		CacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_miss_total", Help: "Cache misses",
		}),
		CacheSetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_set_total", Help: "Cache writes",
		}),
		CacheRemoveTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_remove_total", Help: "Cache removals",
		}),
		StaleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "stale_served_count", Help: "Stale values returned to callers",
		}),
		SoftTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "factory_timeout_soft_count", Help: "Soft factory timeouts",
		}),
		HardTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "factory_timeout_hard_count", Help: "Hard factory timeouts",
		}),
		FailsafeUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "failsafe_used_count", Help: "Fail-safe stale fallbacks used",
		}),
		GetDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "cache_get_duration_ms", Help: "Get/GetOrSet latency in milliseconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		SimilarityHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "similarity_cache_hit", Help: "Similarity-mode cache hits",
		}),
		SimilarityMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "similarity_cache_miss", Help: "Similarity-mode cache misses",
		}),
		SimilarityCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "similarity_candidates_count", Help: "Candidates scanned per lookup",
			Buckets: prometheus.LinearBuckets(0, 8, 9),
		}),
		SimilarityBestScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "similarity_best_score_histogram", Help: "Best candidate score per lookup",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		BackplanePublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "backplane_published_total", Help: "Invalidation messages published",
		}),
		BackplaneDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "backplane_delivered_total", Help: "Invalidation messages delivered to handlers",
		}),
		BackplaneDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "backplane_dropped_total", Help: "Invalidation messages dropped by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.CacheHitTotal, m.CacheMissTotal, m.CacheSetTotal, m.CacheRemoveTotal,
		m.StaleServed, m.SoftTimeoutTotal, m.HardTimeoutTotal, m.FailsafeUsed, m.GetDuration,
		m.SimilarityHit, m.SimilarityMiss, m.SimilarityCandidates, m.SimilarityBestScore,
		m.BackplanePublished, m.BackplaneDelivered, m.BackplaneDropped,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry. Only valid
// when constructed via New(reg) with a *prometheus.Registry; for the
// DefaultRegisterer case use promhttp.Handler() directly.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
