package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the Prometheus instruments exposed on /metrics.
type Collectors struct {
	ConfessionsSubmitted prometheus.Counter
	ModerationDecisions  *prometheus.CounterVec
	PostsPublished       *prometheus.CounterVec
	PostFailures         *prometheus.CounterVec
	RateLimitDenials     *prometheus.CounterVec
	JobsFinalized        *prometheus.CounterVec
	DispatchDuration     prometheus.Histogram
}

// NewCollectors registers the instruments on the given registerer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		ConfessionsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "confessions_submitted_total",
			Help:      "Confessions accepted for moderation.",
		}),
		ModerationDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "moderation_decisions_total",
			Help:      "Moderation decisions by outcome.",
		}, []string{"decision"}),
		PostsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "posts_published_total",
			Help:      "Successful posts by platform.",
		}, []string{"platform"}),
		PostFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "post_failures_total",
			Help:      "Failed post attempts by platform and failure kind.",
		}, []string{"platform", "kind"}),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "rate_limit_denials_total",
			Help:      "Post attempts deferred by the per-platform rate limit.",
		}, []string{"platform"}),
		JobsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whispervault",
			Name:      "publish_jobs_finalized_total",
			Help:      "Publish jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whispervault",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a full dispatch attempt across platforms.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNopCollectors returns collectors on a throwaway registry, for tests.
func NewNopCollectors() *Collectors {
	return NewCollectors(prometheus.NewRegistry())
}
