package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDBCall(t *testing.T) {
	// Use a fresh registry for each test to avoid "duplicate registration" panic
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordDBCall("insert", "usage_logs")
	m.RecordDBCall("insert", "usage_logs")
	m.RecordDBCall("select", "profiles")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.dbCalls.WithLabelValues("insert", "usage_logs")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dbCalls.WithLabelValues("select", "profiles")))
}

func TestObserveProcessing(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveProcessing("success", 1.5)
	m.ObserveProcessing("failed", 0.2)

	assert.Equal(t, 2, testutil.CollectAndCount(m.processingTime, "invoice_processing_seconds"))
}

func TestNewDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
