// Package metrics exposes prometheus collectors for the leaderboard engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-leaderboard-service/internal/domain"
)

// Recorder implements app.Recorder on top of prometheus collectors.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  prometheus.Registerer

	checks         *prometheus.CounterVec
	commits        *prometheus.CounterVec
	conflicts      prometheus.Counter
	commitDuration prometheus.Histogram
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the commit latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// WithRegistry registers collectors on registry instead of the default one.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// New builds and registers the collectors.
func New(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		namespace: "quiz",
		subsystem: "leaderboard",
		buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.checks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "checks_total",
		Help:      "Qualification checks by reason.",
	}, []string{"reason"})
	r.commits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "commits_total",
		Help:      "Commits by outcome.",
	}, []string{"outcome"})
	r.conflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "commit_conflicts_total",
		Help:      "Store write conflicts that triggered a commit retry.",
	})
	r.commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "commit_duration_seconds",
		Help:      "Commit latency including lock wait and retries.",
		Buckets:   r.buckets,
	})

	for _, c := range []prometheus.Collector{r.checks, r.commits, r.conflicts, r.commitDuration} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveCheck(reason domain.CheckReason) {
	r.checks.WithLabelValues(string(reason)).Inc()
}

func (r *Recorder) ObserveCommit(outcome string, elapsed time.Duration) {
	r.commits.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.commitDuration.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) ObserveConflict() {
	r.conflicts.Inc()
}
