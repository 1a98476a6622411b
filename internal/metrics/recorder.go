package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

// Claim outcomes recorded by ObserveClaim.
const (
	ClaimAccepted = "accepted"
	ClaimTaken    = "taken"
	ClaimInvalid  = "invalid"
	ClaimLimited  = "rate_limited"
)

// Recorder holds the domain counters. It satisfies the observer
// interfaces of the sweeper, the persister and the plugin notifier.
type Recorder struct {
	claims       *prometheus.CounterVec
	events       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	swept        prometheus.Counter
	sweeps       prometheus.Counter
	persistTime  prometheus.Histogram
	persistFails prometheus.Counter
}

// NewRecorder registers the domain metrics with reg. Tests pass a fresh
// prometheus.NewRegistry; the server passes prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Grid change events published on the bus.",
		}, []string{"kind"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_deliveries_total",
			Help:      "Plugin notifications by plugin and outcome.",
		}, []string{"plugin", "outcome"}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_cells_total",
			Help:      "Expired cells removed by the sweeper.",
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeper passes run.",
		}),
		persistTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Snapshot save duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		persistFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Snapshot saves that returned an error.",
		}),
	}
}

// ObserveClaim counts a claim attempt.
func (r *Recorder) ObserveClaim(result string) {
	r.claims.WithLabelValues(result).Inc()
}

// ObserveEvent counts a bus event. Subscribe it with bus.Subscribe.
func (r *Recorder) ObserveEvent(e trigger.Event) {
	r.events.WithLabelValues(string(e.Kind())).Inc()
}

func (r *Recorder) ObserveDelivery(plugin, outcome string) {
	r.deliveries.WithLabelValues(plugin, outcome).Inc()
}

func (r *Recorder) ObserveSweep(removed int) {
	r.sweeps.Inc()
	r.swept.Add(float64(removed))
}

func (r *Recorder) ObservePersist(elapsed time.Duration, err error) {
	r.persistTime.Observe(elapsed.Seconds())
	if err != nil {
		r.persistFails.Inc()
	}
}
