// Package metrics exposes run outcome counters on the standard prometheus
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run result label values.
const (
	RunResultOK    = "ok"
	RunResultFatal = "fatal"
)

// Tracker counts sync outcomes. Recording metrics is best-effort and never
// affects the run.
type Tracker struct {
	seen            prometheus.Counter
	skipped         prometheus.Counter
	published       prometheus.Counter
	publishFailures prometheus.Counter
	invalid         prometheus.Counter
	unexpected      prometheus.Counter
	runs            *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// New creates a Tracker and registers its collectors with the given
// registerer.
func New(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		seen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_messages_seen_total",
			Help: "Messages returned by intake across all runs.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_messages_skipped_total",
			Help: "Messages skipped because they were already processed.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_messages_published_total",
			Help: "Messages published as forum topics.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_publish_failures_total",
			Help: "Messages whose forum publish attempt failed.",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_messages_invalid_total",
			Help: "Messages that did not qualify for publication.",
		}),
		unexpected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telesync_unexpected_failures_total",
			Help: "Messages that failed with an unexpected error.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telesync_runs_total",
			Help: "Completed sync runs by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telesync_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed run.",
		}),
	}

	reg.MustRegister(
		t.seen, t.skipped, t.published, t.publishFailures,
		t.invalid, t.unexpected, t.runs, t.lastRun,
	)
	return t
}

// AddSeen records the intake batch size of a run.
func (t *Tracker) AddSeen(n int) {
	t.seen.Add(float64(n))
}

// IncSkipped counts an already-processed message.
func (t *Tracker) IncSkipped() {
	t.skipped.Inc()
}

// IncPublished counts a successfully published message.
func (t *Tracker) IncPublished() {
	t.published.Inc()
}

// IncPublishFailed counts a failed publish attempt.
func (t *Tracker) IncPublishFailed() {
	t.publishFailures.Inc()
}

// IncInvalid counts a message that did not qualify.
func (t *Tracker) IncInvalid() {
	t.invalid.Inc()
}

// IncUnexpected counts an unexpected per-message failure.
func (t *Tracker) IncUnexpected() {
	t.unexpected.Inc()
}

// ObserveRun counts a completed run and stamps its completion time.
func (t *Tracker) ObserveRun(result string, finished time.Time) {
	t.runs.WithLabelValues(result).Inc()
	t.lastRun.Set(float64(finished.Unix()))
}
