package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUninitializedStore(t *testing.T) {
	var s *Store
	assert.Error(t, s.HealthCheck(context.Background()))
	assert.Nil(t, s.Stats())
	s.Close()
}

func TestRegisterMetricsWithoutPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := &Store{}
	require.NoError(t, s.RegisterMetrics(reg))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "disputes_db_pool_connections", families[0].GetName())
	assert.Len(t, families[0].GetMetric(), 4)
	for _, m := range families[0].GetMetric() {
		assert.Zero(t, m.GetGauge().GetValue())
	}

	assert.Error(t, s.RegisterMetrics(reg), "duplicate registration")
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "://not a url", Options{})
	assert.Error(t, err)
}
