// Package metrics holds the prometheus collectors for the publish pipeline.
// A nil *Collectors is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collectors struct {
	uploads        *prometheus.CounterVec
	duplicates     prometheus.Counter
	danglingRefs   prometheus.Counter
	publishes      *prometheus.CounterVec
	publishSeconds prometheus.Histogram
	pings          *prometheus.CounterVec
	syncDecisions  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "file_uploads_total",
			Help:      "Supporting file uploads by phase and outcome.",
		}, []string{"phase", "outcome"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "duplicate_upload_attempts_total",
			Help:      "Upload requests for files already uploaded in the same publish.",
		}),
		danglingRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "dangling_references_total",
			Help:      "References that matched no tracked supporting file.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "publishes_total",
			Help:      "Publish operations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		publishSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blogpub",
			Name:      "publish_duration_seconds",
			Help:      "Wall time of a publish operation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "pings_total",
			Help:      "Weblog update pings by outcome.",
		}, []string{"outcome"}),
		syncDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogpub",
			Name:      "sync_decisions_total",
			Help:      "Recent post synchronization decisions.",
		}, []string{"decision"}),
	}
	reg.MustRegister(c.uploads, c.duplicates, c.danglingRefs, c.publishes, c.publishSeconds, c.pings, c.syncDecisions)
	return c
}

func (c *Collectors) Upload(phase, outcome string) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(phase, outcome).Inc()
}

func (c *Collectors) DuplicateUpload() {
	if c == nil {
		return
	}
	c.duplicates.Inc()
}

func (c *Collectors) DanglingReference() {
	if c == nil {
		return
	}
	c.danglingRefs.Inc()
}

func (c *Collectors) Publish(mode, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.publishes.WithLabelValues(mode, outcome).Inc()
	c.publishSeconds.Observe(seconds)
}

func (c *Collectors) Ping(outcome string) {
	if c == nil {
		return
	}
	c.pings.WithLabelValues(outcome).Inc()
}

func (c *Collectors) SyncDecision(decision string) {
	if c == nil {
		return
	}
	c.syncDecisions.WithLabelValues(decision).Inc()
}
