package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWithoutInitReturnsUsableMetrics(t *testing.T) {
	defaultMetrics = nil
	m := Get()
	require.NotNil(t, m)

	m.TicksTotal.Inc()
	m.ReadsTotal.WithLabelValues("plc1", "ok").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksTotal))
}

func TestInitRegistersAndRecordsMetrics(t *testing.T) {
	m := Init("jidl_test", "scheduler")
	defer func() { defaultMetrics = nil }()

	m.TicksTotal.Inc()
	m.ReadsTotal.WithLabelValues("plc1", "ok").Inc()
	m.ConnectionStatus.WithLabelValues("plc1").Set(1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReadsTotal.WithLabelValues("plc1", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionStatus.WithLabelValues("plc1")))
	assert.Same(t, m, Get())
}
