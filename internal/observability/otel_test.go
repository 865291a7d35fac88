package observability

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvedge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func enabledConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{
		Enabled:     true,
		ServiceName: "cvedge-test",
		SampleRate:  1.0,
		Metrics: config.MetricsConfig{
			Enabled:         true,
			TrackTokenUsage: true,
			TrackRateLimits: true,
		},
	}
}

func newTestManager(t *testing.T, cfg config.ObservabilityConfig) *ObservabilityManager {
	t.Helper()
	om, err := NewObservabilityManager(cfg, "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })
	return om
}

// collect returns the data points of every metric, keyed by metric name
func collect(t *testing.T, om *ObservabilityManager) map[string]metricdata.Aggregation {
	t.Helper()
	require.NotNil(t, om.manualReader)

	var rm metricdata.ResourceMetrics
	require.NoError(t, om.manualReader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestResolve(t *testing.T) {
	cfg := Resolve(config.ObservabilityConfig{}, "1.2.3")

	assert.Equal(t, "cvedge", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "cvedge-1", cfg.ServiceInstance)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "/metrics", cfg.Prometheus.Endpoint)
	assert.Equal(t, "9090", cfg.Prometheus.Port)

	kept := Resolve(config.ObservabilityConfig{ServiceName: "x", ServiceVersion: "9", SampleRate: 0.5}, "1.2.3")
	assert.Equal(t, "x", kept.ServiceName)
	assert.Equal(t, "9", kept.ServiceVersion)
	assert.Equal(t, 0.5, kept.SampleRate)
}

func TestDisabledManagerIsNoOp(t *testing.T) {
	om := newTestManager(t, config.ObservabilityConfig{Enabled: false})

	handler := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	m := om.GetMetrics()
	require.NotNil(t, m)

	called := false
	err := m.TrackAIOperationWithTokens(context.Background(), "optimize", func(ctx context.Context) *AIOperationResult {
		called = true
		return &AIOperationResult{Error: stderrors.New("boom")}
	}, om)
	assert.True(t, called)
	assert.EqualError(t, err, "boom")

	// Recording on empty metrics must not panic
	m.RecordBusinessMetric(context.Background(), MetricResumeOptimized, true, om)
	m.RecordRender(context.Background(), "fpdf", time.Millisecond, nil)
}

func TestNilManager(t *testing.T) {
	var om *ObservabilityManager
	assert.NotNil(t, om.GetMetrics())
	assert.NotNil(t, om.Tracer("x"))
	assert.NoError(t, om.Shutdown(context.Background()))
}

func TestTrackAIOperationWithTokens(t *testing.T) {
	om := newTestManager(t, enabledConfig())
	m := om.GetMetrics()
	ctx := context.Background()

	err := m.TrackAIOperationWithTokens(ctx, "optimize", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}}
	}, om)
	require.NoError(t, err)

	err = m.TrackAIOperationWithTokens(ctx, "optimize", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{Error: stderrors.New("upstream failed")}
	}, om)
	require.EqualError(t, err, "upstream failed")

	data := collect(t, om)
	assert.Equal(t, int64(2), sumValue(t, data["cvedge_ai_requests_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvedge_ai_errors_total"]))

	tokens, ok := data["cvedge_ai_token_usage_total"].(metricdata.Histogram[int64])
	require.True(t, ok)
	var recorded uint64
	for _, dp := range tokens.DataPoints {
		recorded += dp.Count
	}
	assert.Equal(t, uint64(3), recorded)
}

func TestTokenUsageTrackingDisabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Metrics.TrackTokenUsage = false
	om := newTestManager(t, cfg)

	err := om.GetMetrics().TrackAIOperationWithTokens(context.Background(), "optimize", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &TokenUsage{TotalTokens: 5}}
	}, om)
	require.NoError(t, err)

	data := collect(t, om)
	_, present := data["cvedge_ai_token_usage_total"]
	assert.False(t, present)
}

func TestRecordBusinessMetric(t *testing.T) {
	om := newTestManager(t, enabledConfig())
	m := om.GetMetrics()
	ctx := context.Background()

	m.RecordBusinessMetric(ctx, MetricResumeOptimized, true, om)
	m.RecordBusinessMetric(ctx, MetricResumeOptimized, false, om)
	m.RecordBusinessMetric(ctx, MetricDemoFallback, true, om)
	m.RecordBusinessMetric(ctx, MetricRateLimitHit, false, om)
	m.RecordBusinessMetric(ctx, "unknown", true, om)

	data := collect(t, om)
	assert.Equal(t, int64(2), sumValue(t, data["cvedge_resumes_optimized_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvedge_demo_fallbacks_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvedge_rate_limit_hits_total"]))
}

func TestRateLimitTrackingDisabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Metrics.TrackRateLimits = false
	om := newTestManager(t, cfg)

	om.GetMetrics().RecordBusinessMetric(context.Background(), MetricRateLimitHit, false, om)

	_, present := collect(t, om)["cvedge_rate_limit_hits_total"]
	assert.False(t, present)
}

func TestRecordRender(t *testing.T) {
	om := newTestManager(t, enabledConfig())
	m := om.GetMetrics()

	m.RecordRender(context.Background(), "fpdf", 25*time.Millisecond, nil)
	m.RecordRender(context.Background(), "chromedp", time.Second, stderrors.New("no browser"))

	data := collect(t, om)
	assert.Equal(t, int64(2), sumValue(t, data["cvedge_pdf_renders_total"]))
	_, ok := data["cvedge_pdf_render_duration_seconds"].(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestMetricsDisabledKeepsTracing(t *testing.T) {
	cfg := enabledConfig()
	cfg.Metrics.Enabled = false
	om := newTestManager(t, cfg)

	assert.Nil(t, om.GetMetrics().AIRequestCount)

	handler := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
