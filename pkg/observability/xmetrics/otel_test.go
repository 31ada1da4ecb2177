package xmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRegistry(t *testing.T) (*OTelRegistry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewOTelRegistry(WithMeterProvider(provider)), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// TestOTelRegistry_Timer 测试计时器记录为纳秒直方图
func TestOTelRegistry_Timer(t *testing.T) {
	reg, reader := newTestRegistry(t)

	timer := reg.Timer("db.run.timeInNanos")
	assert.Same(t, timer, reg.Timer("db.run.timeInNanos"))

	timer.Update(3 * time.Millisecond)
	sw := timer.Start()
	sw.Stop()
	sw.Stop()

	metrics := collect(t, reader)
	m, ok := metrics["db.run.timeInNanos"]
	require.True(t, ok)
	assert.Equal(t, "ns", m.Unit)

	hist, ok := m.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.GreaterOrEqual(t, hist.DataPoints[0].Sum, int64(3*time.Millisecond))
}

// TestOTelRegistry_Gauge 测试 gauge 每次采集时重新取值
func TestOTelRegistry_Gauge(t *testing.T) {
	reg, reader := newTestRegistry(t)

	value := 0.25
	require.NoError(t, reg.RegisterGauge("db.MainThreadBusyness", func() float64 { return value }))

	read := func() float64 {
		m := collect(t, reader)["db.MainThreadBusyness"]
		g, ok := m.Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		require.Len(t, g.DataPoints, 1)
		return g.DataPoints[0].Value
	}

	assert.InDelta(t, 0.25, read(), 1e-9)
	value = 0.75
	assert.InDelta(t, 0.75, read(), 1e-9)
}

// TestOTelRegistry_GaugeErrors 测试 gauge 注册的参数校验
func TestOTelRegistry_GaugeErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	assert.ErrorIs(t, reg.RegisterGauge("", func() float64 { return 0 }), ErrEmptyName)
	assert.ErrorIs(t, reg.RegisterGauge("g", nil), ErrNilGaugeFunc)

	require.NoError(t, reg.RegisterGauge("g", func() float64 { return 1 }))
	assert.ErrorIs(t, reg.RegisterGauge("g", func() float64 { return 2 }), ErrDuplicateMetric)

	require.NoError(t, reg.Close())
	assert.NoError(t, reg.RegisterGauge("g", func() float64 { return 3 }))
}

// TestOTelRegistry_Counter 测试计数器累加且忽略非正数
func TestOTelRegistry_Counter(t *testing.T) {
	reg, reader := newTestRegistry(t)

	c := reg.Counter("db.run.attempts")
	c.Add(2)
	c.Add(0)
	c.Add(-1)
	reg.Counter("db.run.attempts").Add(1)

	m := collect(t, reader)["db.run.attempts"]
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}
