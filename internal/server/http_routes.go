package server

import (
	"context"
	"net/http"
	"strings"

	cvedgeErrors "cvedge/internal/errors"
	"cvedge/internal/observability"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation ID
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Handler returns the complete HTTP handler: routes, otel instrumentation and request IDs
func (s *Server) Handler(om *observability.ObservabilityManager) http.Handler {
	return requestIDMiddleware(om.HTTPMiddleware()(s.setupRoutes(om)))
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	rateLimit := s.rateLimitMiddleware(om)
	sizeLimit := s.requestSizeLimitMiddleware()
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimit(sizeLimit(s.authMiddleware(h)))
	}

	mux.HandleFunc("GET /{$}", s.pageHandler)
	mux.HandleFunc("POST /{$}", protect(s.createPageSubmitHandler(om)))
	mux.HandleFunc("POST /api/optimize", protect(s.createOptimizeHandler(om)))
	mux.HandleFunc("POST /download", protect(s.createDownloadHandler(om)))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)

	return mux
}

// requestIDMiddleware assigns every request an ID, reusing a well-formed inbound one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored in ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestLogger returns the server logger annotated with the request ID
func (s *Server) requestLogger(r *http.Request) *cvedgeErrors.Logger {
	if id := RequestID(r.Context()); id != "" {
		return s.Logger.With("request_id", id)
	}
	return s.Logger
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.APIKeys) == 0 {
			next(w, r)
			return
		}

		logger := s.requestLogger(r)
		apiKey := clientAPIKey(r)
		if apiKey == "" {
			apiKey = formAccessKey(r)
		}
		if apiKey == "" {
			logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "", "X-API-Key header, Authorization Bearer token or accessKey form field required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// clientAPIKey reads the server access key from X-API-Key or a Bearer token
func clientAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// formAccessKey reads the accessKey field of a form post, so the HTML page can authenticate.
// JSON requests must use a header.
func formAccessKey(r *http.Request) string {
	if r.Method != http.MethodPost || isJSONRequest(r) {
		return ""
	}
	return strings.TrimSpace(r.PostFormValue("accessKey"))
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}
			next(w, r)
		}
	}
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
