package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryhazerus/drl"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	limiter := drl.New(drl.WithRecorder(rec))
	target, err := limiter.Target("api", "user1", 2, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := target.Increment(ctx, 1)
		require.NoError(t, err)
	}
	_, err = target.Used(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.calls.WithLabelValues("increment", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.calls.WithLabelValues("increment", "rejected")))

	expected := `
# HELP drl_call_total Store calls made by rate limit targets, by operation and result.
# TYPE drl_call_total counter
drl_call_total{op="increment",result="allowed"} 2
drl_call_total{op="increment",result="rejected"} 1
drl_call_total{op="used",result="allowed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "drl_call_total"))

	// One series per op.
	n, err := testutil.GatherAndCount(reg, "drl_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheusRecorderIgnoresUnknownNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.Add("other.counter", 1, map[string]string{"op": "x"})
	rec.Observe("other.timing", 1, map[string]string{"op": "x"})

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrometheusRecorderDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}
