package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Batch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Submitted("main", "User", false)
	m.Submitted("main", "User", true)
	m.Batch("main", "User", 3, nil)
	m.Batch("main", "User", 2, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupsSubmitted.WithLabelValues("main", "User")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeysDeduplicated.WithLabelValues("main", "User")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchesExecuted.WithLabelValues("main", "User")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.KeysFetched.WithLabelValues("main", "User")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("main", "User")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Submitted("main", "User", true)
		m.Batch("main", "User", 1, nil)
		m.Cache("User", 1, 1)
		m.Range("main", "User")
	})
}
