package drl

// Metric names emitted through a Recorder.
const (
	MetricCall    = "drl.call"    // counter, tags: op, result
	MetricLatency = "drl.latency" // seconds, tags: op
)

// Recorder receives counters and observations about store calls. The metrics
// package provides a Prometheus implementation.
type Recorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// nopRecorder keeps the hot path free of nil checks.
type nopRecorder struct{}

func (nopRecorder) Add(string, float64, map[string]string)     {}
func (nopRecorder) Observe(string, float64, map[string]string) {}
