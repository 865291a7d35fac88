package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Business metric types accepted by RecordBusinessMetric
const (
	MetricResumeOptimized = "resume_optimized"
	MetricDemoFallback    = "demo_fallback"
	MetricRateLimitHit    = "rate_limit_hit"
)

// Metrics holds all custom metrics for CVEdge. The zero value records nothing.
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Business metrics
	ResumesOptimized metric.Int64Counter
	DemoFallbacks    metric.Int64Counter

	// Rendering metrics
	PDFRenders        metric.Int64Counter
	PDFRenderDuration metric.Float64Histogram

	RateLimitHits metric.Int64Counter
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AIProcessingTime, err = meter.Float64Histogram(
		"cvedge_ai_processing_duration_seconds",
		metric.WithDescription("Time spent waiting on the completion provider"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	if m.AIRequestCount, err = meter.Int64Counter(
		"cvedge_ai_requests_total",
		metric.WithDescription("Total number of completion requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	if m.AIErrorCount, err = meter.Int64Counter(
		"cvedge_ai_errors_total",
		metric.WithDescription("Total number of failed completion requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	if m.AITokenUsage, err = meter.Int64Histogram(
		"cvedge_ai_token_usage_total",
		metric.WithDescription("Token usage for completion requests (input, output, total)"),
		metric.WithUnit("tokens"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	if m.ResumesOptimized, err = meter.Int64Counter(
		"cvedge_resumes_optimized_total",
		metric.WithDescription("Total number of optimization results returned"),
	); err != nil {
		return nil, fmt.Errorf("failed to create resumes optimized metric: %w", err)
	}

	if m.DemoFallbacks, err = meter.Int64Counter(
		"cvedge_demo_fallbacks_total",
		metric.WithDescription("Total number of demo results served in place of a completion"),
	); err != nil {
		return nil, fmt.Errorf("failed to create demo fallback metric: %w", err)
	}

	if m.PDFRenders, err = meter.Int64Counter(
		"cvedge_pdf_renders_total",
		metric.WithDescription("Total number of PDF renders"),
	); err != nil {
		return nil, fmt.Errorf("failed to create PDF render metric: %w", err)
	}

	if m.PDFRenderDuration, err = meter.Float64Histogram(
		"cvedge_pdf_render_duration_seconds",
		metric.WithDescription("Time spent rendering PDFs"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create PDF render duration metric: %w", err)
	}

	if m.RateLimitHits, err = meter.Int64Counter(
		"cvedge_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return m, nil
}

// TrackAIOperationWithTokens instruments an AI operation with tracing, metrics, and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIProcessingTime == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := otel.Tracer("cvedge.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}
	m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
	m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
	if result != nil && result.TokenUsage != nil {
		m.recordTokenUsage(ctx, result.TokenUsage, attrs, om, span)
	}
	span.SetAttributes(attrs...)

	return err
}

func (m *Metrics) recordTokenUsage(ctx context.Context, usage *TokenUsage, attrs []attribute.KeyValue, om *ObservabilityManager, span oteltrace.Span) {
	// Token counts always go on the span; the histogram is optional
	span.SetAttributes(
		attribute.Int64("ai.tokens.input", usage.InputTokens),
		attribute.Int64("ai.tokens.output", usage.OutputTokens),
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
	)
	if om != nil && !om.config.Metrics.TrackTokenUsage {
		return
	}

	for _, tt := range []struct {
		tokenType string
		value     int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	} {
		tokenAttrs := append(append([]attribute.KeyValue{}, attrs...), attribute.String("token_type", tt.tokenType))
		m.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(tokenAttrs...))
	}
}

// RecordBusinessMetric records one of the MetricXxx business counters
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricType string, success bool, om *ObservabilityManager, attributes ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)

	var counter metric.Int64Counter
	switch metricType {
	case MetricResumeOptimized:
		counter = m.ResumesOptimized
	case MetricDemoFallback:
		counter = m.DemoFallbacks
	case MetricRateLimitHit:
		if om != nil && !om.config.Metrics.TrackRateLimits {
			return
		}
		counter = m.RateLimitHits
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRender records a PDF render attempt for the given engine
func (m *Metrics) RecordRender(ctx context.Context, engine string, duration time.Duration, err error) {
	if m.PDFRenders == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.Bool("success", err == nil),
	)
	m.PDFRenders.Add(ctx, 1, attrs)
	m.PDFRenderDuration.Record(ctx, duration.Seconds(), attrs)
}
