package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "komerge"

// Recorder holds the service counters on a private registry so tests can build
// as many as they like without colliding on the global one.
type Recorder struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	Merges          *prometheus.CounterVec
	Downloads       prometheus.Counter
	SweepRemoved    prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created from a valid upload.",
		}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Merge executions by result.",
		}, []string{"result"}),
		Downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Processed databases served.",
		}),
		SweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Sessions reclaimed by the cleanup scheduler.",
		}),
	}
	reg.MustRegister(
		r.SessionsActive,
		r.SessionsCreated,
		r.Merges,
		r.Downloads,
		r.SweepRemoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// The helpers below tolerate a nil Recorder so services can run without metrics.

func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsCreated.Inc()
	r.SessionsActive.Inc()
}

func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
}

func (r *Recorder) MergeFinished(result string) {
	if r == nil {
		return
	}
	r.Merges.WithLabelValues(result).Inc()
}

func (r *Recorder) Downloaded() {
	if r == nil {
		return
	}
	r.Downloads.Inc()
}

func (r *Recorder) Swept(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SweepRemoved.Add(float64(n))
}
