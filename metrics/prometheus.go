// Package metrics exports drl call metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryhazerus/drl"
)

var _ drl.Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements drl.Recorder. drl.call becomes the counter
// drl_call_total{op,result} and drl.latency the histogram
// drl_latency_seconds{op}. Other names are dropped.
type PrometheusRecorder struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
// It fails if they are already registered.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drl",
			Name:      "call_total",
			Help:      "Store calls made by rate limit targets, by operation and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drl",
			Name:      "latency_seconds",
			Help:      "Latency of store calls made by rate limit targets.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{r.calls, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	if name != drl.MetricCall {
		return
	}
	r.calls.WithLabelValues(tags["op"], tags["result"]).Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name != drl.MetricLatency {
		return
	}
	r.latency.WithLabelValues(tags["op"]).Observe(value)
}
