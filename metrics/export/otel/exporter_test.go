package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truesplit/tsauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot tsauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tsauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tsauth.MetricsSnapshot{
		Counters:   make(map[tsauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[tsauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters: map[tsauth.MetricID]uint64{
				tsauth.MetricLoginSuccess: 3,
				tsauth.MetricOTPSwept:     5,
			},
			Histograms: map[tsauth.MetricID][]uint64{
				tsauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("tsauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collectSums(t, reader)
	assert.Equal(t, int64(3), got["tsauth_login_success_total"])
	assert.Equal(t, int64(5), got["tsauth_otp_swept_total"])
	assert.Equal(t, int64(1), got["tsauth_audit_dropped_total"])
	assert.Equal(t, int64(1), got["tsauth_authenticate_latency_seconds_bucket_le_0_005"])
	assert.Equal(t, int64(8), got["tsauth_authenticate_latency_seconds_bucket_le_inf"])
	assert.Equal(t, int64(8), got["tsauth_authenticate_latency_seconds_count"])
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewOTelExporterFromSource(provider.Meter("tsauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewOTelExporterFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = NewOTelExporter(provider.Meter("tsauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters:   map[tsauth.MetricID]uint64{tsauth.MetricLoginSuccess: 1},
			Histograms: map[tsauth.MetricID][]uint64{},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("tsauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[tsauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
