package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"cvedge/internal/common"
	cvedgeErrors "cvedge/internal/errors"
	"cvedge/internal/observability"
	"cvedge/internal/render"
	"cvedge/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// createOptimizeHandler serves the JSON optimize action
func (s *Server) createOptimizeHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvedge.api").Start(r.Context(), "api.optimize")
		defer span.End()

		var req types.OptimizationRequest
		if err := parseJSONRequest(r, &req); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", cvedgeErrors.ErrCodeInvalidRequest, err.Error(), statusForBodyError(err))
			return
		}

		if err := common.ValidateResumeText(req.ResumeText); err != nil {
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Missing resume text", cvedgeErrors.ErrCodeEmptyInput, userMessage(err), http.StatusBadRequest)
			return
		}

		span.SetAttributes(
			attribute.Int("request.resume_length", len(req.ResumeText)),
			attribute.Int("request.job_length", len(req.JobDescription)),
			attribute.Bool("request.caller_credential", req.APIKey != ""),
		)

		result, err := s.runOptimize(ctx, r, req, om)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.code", cvedgeErrors.CodeOf(err)))
			writeAppError(w, "Failed to optimize resume", err)
			return
		}

		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.String("result.source", result.Source),
			attribute.Int("response.optimized_length", len(result.OptimizedText)),
		)

		writeJSON(w, http.StatusOK, result)
	}
}

// runOptimize calls the optimizer with tracing and metrics around it
func (s *Server) runOptimize(ctx context.Context, r *http.Request, req types.OptimizationRequest, om *observability.ObservabilityManager) (types.OptimizationResult, error) {
	metrics := om.GetMetrics()
	logger := s.requestLogger(r)

	var result types.OptimizationResult
	err := metrics.TrackAIOperationWithTokens(ctx, "optimize", func(ctx context.Context) *observability.AIOperationResult {
		output, tokenUsage, aiErr := s.Optimizer.Optimize(ctx, req)
		result = output
		return &observability.AIOperationResult{
			Error:      aiErr,
			TokenUsage: (*observability.TokenUsage)(tokenUsage),
		}
	}, om)

	if err != nil {
		logger.LogError(err, "Optimization failed", "caller_credential", req.APIKey != "")
		metrics.RecordBusinessMetric(ctx, observability.MetricResumeOptimized, false, om,
			attribute.String("error_code", cvedgeErrors.CodeOf(err)))
		return types.OptimizationResult{}, err
	}

	if result.IsDemo() {
		metrics.RecordBusinessMetric(ctx, observability.MetricDemoFallback, true, om)
	}
	metrics.RecordBusinessMetric(ctx, observability.MetricResumeOptimized, true, om,
		attribute.String("source", result.Source))

	logger.Info("Resume optimized",
		"source", result.Source,
		"model", result.Model,
		"optimized_length", len(result.OptimizedText))
	return result, nil
}

// createDownloadHandler renders posted text into the PDF download
func (s *Server) createDownloadHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("cvedge.api").Start(r.Context(), "api.download")
		defer span.End()

		text, err := parseDownloadRequest(r)
		if err != nil {
			span.RecordError(err)
			writeErrorResponse(w, "Invalid request body", cvedgeErrors.ErrCodeInvalidRequest, err.Error(), statusForBodyError(err))
			return
		}

		start := time.Now()
		doc, err := s.Renderer.Render(ctx, text)
		om.GetMetrics().RecordRender(ctx, s.Renderer.Engine(), time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			s.requestLogger(r).LogError(err, "PDF rendering failed", "engine", s.Renderer.Engine())
			writeAppError(w, "Failed to render PDF", err)
			return
		}

		span.SetAttributes(
			attribute.Int("pdf.pages", doc.Pages),
			attribute.Int("pdf.bytes", len(doc.Bytes)),
		)

		w.Header().Set("Content-Type", render.MIMEType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.FileName))
		w.Header().Set("Content-Length", strconv.Itoa(len(doc.Bytes)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(doc.Bytes); err != nil {
			s.requestLogger(r).LogError(err, "Failed to write PDF response")
		}
	}
}

// parseDownloadRequest reads the optimized text from a JSON body or the "optimized" form field
func parseDownloadRequest(r *http.Request) (string, error) {
	if isJSONRequest(r) {
		var req types.DownloadRequest
		if err := parseJSONRequest(r, &req); err != nil {
			return "", err
		}
		return req.OptimizedText, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("failed to parse form: %w", err)
	}
	return r.PostFormValue("optimized"), nil
}

// statusForError maps an application error onto its HTTP status
func statusForError(err error) int {
	switch cvedgeErrors.CodeOf(err) {
	case cvedgeErrors.ErrCodeEmptyInput, cvedgeErrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case cvedgeErrors.ErrCodeMissingAPIKey:
		return http.StatusUnauthorized
	case cvedgeErrors.ErrCodeAIServiceFailed, cvedgeErrors.ErrCodeAIResponseInvalid:
		return http.StatusBadGateway
	case cvedgeErrors.ErrCodeAITimeout, cvedgeErrors.ErrCodeNetworkTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage returns the message of the outermost AppError, without its cause
func userMessage(err error) string {
	var appErr *cvedgeErrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

func writeAppError(w http.ResponseWriter, title string, err error) {
	writeErrorResponse(w, title, cvedgeErrors.CodeOf(err), userMessage(err), statusForError(err))
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
