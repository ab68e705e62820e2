package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truesplit/tsauth"
)

type fakeSource struct {
	snapshot tsauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tsauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters:   map[tsauth.MetricID]uint64{},
			Histograms: map[tsauth.MetricID][]uint64{},
		},
	})

	assert.Empty(t, exp.Render())
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters: map[tsauth.MetricID]uint64{
				tsauth.MetricOTPRequest:   4,
				tsauth.MetricLoginSuccess: 7,
			},
			Histograms: map[tsauth.MetricID][]uint64{
				tsauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	assert.Contains(t, out, "tsauth_otp_request_total 4")
	assert.Contains(t, out, "tsauth_login_success_total 7")
	assert.Contains(t, out, "tsauth_signup_success_total 0")
	assert.Contains(t, out, `tsauth_authenticate_latency_seconds_bucket{le="0.005"} 1`)
	assert.Contains(t, out, `tsauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`)
	assert.Contains(t, out, "tsauth_authenticate_latency_seconds_count 36")
	assert.Contains(t, out, "tsauth_audit_dropped_total 2")
}

func TestRenderOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters:   map[tsauth.MetricID]uint64{tsauth.MetricLogout: 1},
			Histograms: map[tsauth.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	assert.Contains(t, out, "tsauth_logout_total 1")
	assert.NotContains(t, out, "tsauth_authenticate_latency_seconds")
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tsauth.MetricsSnapshot{
			Counters:   map[tsauth.MetricID]uint64{tsauth.MetricLoginSuccess: 1},
			Histograms: map[tsauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "tsauth_login_success_total 1")
}

func TestNilExporterRendersNothing(t *testing.T) {
	var exp *PrometheusExporter
	assert.Empty(t, exp.Render())
}
