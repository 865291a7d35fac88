package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cvedge/internal/ai"
	"cvedge/internal/common"
	"cvedge/internal/config"
	cvedgeErrors "cvedge/internal/errors"
	"cvedge/internal/render"
	"cvedge/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	complete func(ctx context.Context, prompt ai.Prompt, structured bool) (*ai.Completion, error)
}

func (p *stubProvider) Complete(ctx context.Context, prompt ai.Prompt, structured bool) (*ai.Completion, error) {
	return p.complete(ctx, prompt, structured)
}

func (p *stubProvider) GetModelInfo(context.Context) *ai.ModelInfo {
	return &ai.ModelInfo{Name: "stub", Provider: "openai", Available: true}
}

func (p *stubProvider) Close() error { return nil }

type testEnv struct {
	server  *Server
	handler http.Handler

	mu       sync.Mutex
	keys     []string
	calls    atomic.Int32
	complete func(ctx context.Context, prompt ai.Prompt, structured bool) (*ai.Completion, error)
}

func (e *testEnv) factory(_ *config.AIConfig, apiKey string, _ *cvedgeErrors.Logger) (ai.CompletionProvider, error) {
	e.mu.Lock()
	e.keys = append(e.keys, apiKey)
	e.mu.Unlock()
	return &stubProvider{complete: func(ctx context.Context, prompt ai.Prompt, structured bool) (*ai.Completion, error) {
		e.calls.Add(1)
		return e.complete(ctx, prompt, structured)
	}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Timeout:        2 * time.Second,
			FallbackPolicy: config.FallbackDemo,
		},
		Renderer: config.RendererConfig{Engine: "fpdf"},
		Server:   config.ServerConfig{Host: "localhost", Port: "0"},
		App:      config.AppConfig{MaxFileSize: 1 << 20},
		Observability: config.ObservabilityConfig{
			HealthCheck: config.HealthCheckConfig{Timeout: time.Second},
		},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	logger := cvedgeErrors.NewLoggerWithWriter(io.Discard, slog.LevelDebug)
	env := &testEnv{
		complete: func(context.Context, ai.Prompt, bool) (*ai.Completion, error) {
			return &ai.Completion{Text: "Optimized resume text", Model: "stub-model"}, nil
		},
	}

	optimizer, err := ai.NewOptimizer(&cfg.AI, logger,
		ai.WithProviderFactory(env.factory),
		ai.WithScoreFunc(func() int { return 90 }))
	require.NoError(t, err)

	renderer, err := render.New(cfg.Renderer)
	require.NoError(t, err)

	env.server = NewServer(cfg, ConfigFrom(cfg, "test"), optimizer, renderer, logger)
	env.handler = env.server.Handler(nil)
	t.Cleanup(env.server.cleanup)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestEndToEndDemoOptimizeAndDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", types.OptimizationRequest{ResumeText: "John Doe, Engineer"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result types.OptimizationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.SourceDemo, result.Source)
	assert.NotEmpty(t, result.OptimizedText)
	assert.Contains(t, result.OptimizedText, "John Doe, Engineer")
	assert.NotEmpty(t, result.Improvements)
	require.NotNil(t, result.ATSScore)
	assert.Equal(t, 90, *result.ATSScore)
	assert.Equal(t, int32(0), env.calls.Load())

	rec = env.do(formRequest("/download", url.Values{"optimized": {result.OptimizedText}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, render.MIMEType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="CVEdge_Optimized_Resume.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	lines, err := render.ExtractLines(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Contains(t, lines, "John Doe, Engineer")
}

func TestOptimizeEmptyInput(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", types.OptimizationRequest{ResumeText: text, APIKey: "sk-user"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, cvedgeErrors.ErrCodeEmptyInput, resp.Code)
		assert.Equal(t, common.EmptyResumeMessage, resp.Message)
	}

	assert.Equal(t, int32(0), env.calls.Load())
	assert.Empty(t, env.keys)
}

func TestOptimizeWithCallerKey(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", types.OptimizationRequest{
		ResumeText:     "Jane Roe, Designer",
		JobDescription: "Senior product designer",
		APIKey:         "sk-user-secret",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk-user-secret")

	var result types.OptimizationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.SourceAI, result.Source)
	assert.Equal(t, "Optimized resume text", result.OptimizedText)
	assert.Equal(t, "stub-model", result.Model)
	assert.Equal(t, []string{"sk-user-secret"}, env.keys)
}

func TestOptimizeErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		complete   func(ctx context.Context, prompt ai.Prompt, structured bool) (*ai.Completion, error)
		apiKey     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "caller key upstream failure",
			apiKey:     "sk-user",
			complete:   func(context.Context, ai.Prompt, bool) (*ai.Completion, error) { return nil, fmt.Errorf("connection refused") },
			wantStatus: http.StatusBadGateway,
			wantCode:   cvedgeErrors.ErrCodeAIServiceFailed,
		},
		{
			name:       "caller key empty reply",
			apiKey:     "sk-user",
			complete:   func(context.Context, ai.Prompt, bool) (*ai.Completion, error) { return &ai.Completion{Text: "  "}, nil },
			wantStatus: http.StatusBadGateway,
			wantCode:   cvedgeErrors.ErrCodeAIResponseInvalid,
		},
		{
			name:   "caller key timeout",
			apiKey: "sk-user",
			mutate: func(c *config.Config) { c.AI.Timeout = 50 * time.Millisecond },
			complete: func(ctx context.Context, _ ai.Prompt, _ bool) (*ai.Completion, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   cvedgeErrors.ErrCodeAITimeout,
		},
		{
			name:       "strict policy without credential",
			mutate:     func(c *config.Config) { c.AI.FallbackPolicy = config.FallbackStrict },
			wantStatus: http.StatusUnauthorized,
			wantCode:   cvedgeErrors.ErrCodeMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)
			if tt.complete != nil {
				env.complete = tt.complete
			}

			rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", types.OptimizationRequest{
				ResumeText: "John Doe, Engineer",
				APIKey:     tt.apiKey,
			}))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			if tt.apiKey != "" {
				assert.NotContains(t, rec.Body.String(), tt.apiKey)
			}
		})
	}
}

func TestOptimizeInvalidBody(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/optimize", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, cvedgeErrors.ErrCodeInvalidRequest, decodeError(t, rec).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/optimize", strings.NewReader(`{"resumeText":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestSizeLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.App.MaxFileSize = 64 })

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", types.OptimizationRequest{ResumeText: strings.Repeat("a", 200)}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("json body", func(t *testing.T) {
		rec := env.do(jsonRequest(t, http.MethodPost, "/download", types.DownloadRequest{OptimizedText: "Line one\nLine two"}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
		assert.Equal(t, fmt.Sprint(rec.Body.Len()), rec.Header().Get("Content-Length"))
	})

	t.Run("empty text still renders", func(t *testing.T) {
		rec := env.do(formRequest("/download", url.Values{"optimized": {""}}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
	})

	t.Run("render error returns no pdf bytes", func(t *testing.T) {
		rec := env.do(formRequest("/download", url.Values{"optimized": {"Name\nbroken \xff"}}))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Empty(t, rec.Header().Get("Content-Disposition"))
		assert.False(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
		assert.Equal(t, cvedgeErrors.ErrCodeRenderFailed, decodeError(t, rec).Code)
	})
}

func TestPageFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `name="resumeText"`)
	assert.Contains(t, rec.Body.String(), `name="apiKey"`)

	rec = env.do(formRequest("/", url.Values{"resumeText": {"  "}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), common.EmptyResumeMessage)
	assert.Equal(t, int32(0), env.calls.Load())

	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "Demo result")
	assert.Contains(t, page, "ATS score: <strong>90</strong>")
	assert.Contains(t, page, `action="/download"`)
	assert.Contains(t, page, "John Doe, Engineer")

	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}, "apiKey": {"sk-page-secret"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-page-secret")
	assert.Contains(t, rec.Body.String(), "Optimized resume text")
	assert.Equal(t, []string{"sk-page-secret"}, env.keys)
}

func TestPageShowsZeroScore(t *testing.T) {
	env := newTestEnv(t, nil)
	env.complete = func(context.Context, ai.Prompt, bool) (*ai.Completion, error) {
		return &ai.Completion{Text: `{"optimizedText":"Tight resume","improvements":["Add metrics"],"atsScore":0}`, Model: "fake"}, nil
	}

	rec := env.do(formRequest("/", url.Values{"resumeText": {"John Doe"}, "structured": {"true"}, "apiKey": {"sk-page"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ATS score: <strong>0</strong>")
	assert.Contains(t, rec.Body.String(), "<li>Add metrics</li>")

	env.complete = func(context.Context, ai.Prompt, bool) (*ai.Completion, error) {
		return &ai.Completion{Text: "Plain rewrite", Model: "fake"}, nil
	}
	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe"}, "apiKey": {"sk-page"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "ATS score")
}

func TestPageSurfacesCallerKeyFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.complete = func(context.Context, ai.Prompt, bool) (*ai.Completion, error) {
		return nil, fmt.Errorf("401 invalid api key")
	}

	rec := env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}, "apiKey": {"sk-bad"}}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="error"`)
	assert.NotContains(t, rec.Body.String(), "Demo result")
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.APIKeys = []string{"server-key-123456"} })
	body := types.OptimizationRequest{ResumeText: "John Doe, Engineer"}

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/optimize", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing API key", decodeError(t, rec).Error)

	req := jsonRequest(t, http.MethodPost, "/api/optimize", body)
	req.Header.Set("X-API-Key", "wrong")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", decodeError(t, rec).Error)

	req = jsonRequest(t, http.MethodPost, "/api/optimize", body)
	req.Header.Set("X-API-Key", "server-key-123456")
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	req = jsonRequest(t, http.MethodPost, "/download", types.DownloadRequest{OptimizedText: "x"})
	req.Header.Set("Authorization", "Bearer server-key-123456")
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestAuthMiddlewareAcceptsFormAccessKey(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.APIKeys = []string{"server-key-123456"} })

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="accessKey"`)

	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}, "accessKey": {"wrong"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(formRequest("/", url.Values{"resumeText": {"John Doe, Engineer"}, "accessKey": {"server-key-123456"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "Optimized resume text")
	assert.Contains(t, page, `id="downloadAccessKey"`)
	assert.NotContains(t, page, "server-key-123456")

	rec = env.do(formRequest("/download", url.Values{"optimized": {"Line"}, "accessKey": {"server-key-123456"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	// A JSON body field is not a credential
	rec = env.do(jsonRequest(t, http.MethodPost, "/download", map[string]string{"optimizedText": "x", "accessKey": "server-key-123456"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPageHidesAccessKeyWithoutAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `name="accessKey"`)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 2, ByIP: true}
	})

	send := func(ip string) int {
		req := jsonRequest(t, http.MethodPost, "/download", types.DownloadRequest{OptimizedText: "x"})
		req.RemoteAddr = ip + ":5555"
		return env.do(req).Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2"))

	stats := env.server.RateLimiter.GetStats()
	assert.Equal(t, 2, stats["active_limiters"])
}

func TestGetRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("X-API-Key", "k1")

	assert.Equal(t, "api:k1", getRateLimitKey(req, true, true))
	assert.Equal(t, "ip:198.51.100.7", getRateLimitKey(req, false, true))
	assert.Equal(t, "", getRateLimitKey(req, false, false))

	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientIP(req))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	generated := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, inbound)
	assert.Equal(t, inbound, env.do(req).Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", env.do(req).Header().Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	t.Run("demo policy without key is degraded but serving", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "cvedge", body["service"])
		assert.Equal(t, "demo", body["fallback_policy"])
		assert.Equal(t, "fpdf", body["renderer"])
	})

	t.Run("strict policy without key fails", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.AI.FallbackPolicy = config.FallbackStrict })
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("configured key is healthy", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.AI.APIKey = "sk-process" })
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	})
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"enabled": false}, body["rate_limiting"])
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(httptest.NewRequest(http.MethodGet, "/download", nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/missing", nil)).Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{cvedgeErrors.NewValidationError(cvedgeErrors.ErrCodeEmptyInput, "empty", nil), http.StatusBadRequest},
		{cvedgeErrors.NewConfigError(cvedgeErrors.ErrCodeMissingAPIKey, "no key", nil), http.StatusUnauthorized},
		{cvedgeErrors.NewAIError(cvedgeErrors.ErrCodeAIServiceFailed, "down", nil), http.StatusBadGateway},
		{cvedgeErrors.NewAIError(cvedgeErrors.ErrCodeAIResponseInvalid, "bad", nil), http.StatusBadGateway},
		{cvedgeErrors.NewAIError(cvedgeErrors.ErrCodeAITimeout, "slow", nil), http.StatusGatewayTimeout},
		{cvedgeErrors.NewNetworkError(cvedgeErrors.ErrCodeNetworkTimeout, "slow network", nil), http.StatusGatewayTimeout},
		{cvedgeErrors.NewRenderError(cvedgeErrors.ErrCodeRenderFailed, "broken", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-abcde****", maskAPIKey("sk-abcdefghijk"))
}

func TestPromptWatcherFeedsOptimizer(t *testing.T) {
	promptFile := filepath.Join(t.TempDir(), "system.txt")
	require.NoError(t, os.WriteFile(promptFile, []byte("First prompt"), 0o600))

	env := newTestEnv(t, func(c *config.Config) {
		c.AI.SystemPrompt = "First prompt"
		c.AI.SystemPromptFile = promptFile
		c.AI.WatchPromptFile = true
	})

	require.NoError(t, env.server.startPromptWatcher())
	require.NotNil(t, env.server.PromptWatcher)
	assert.True(t, env.server.PromptWatcher.IsRunning())

	require.NoError(t, os.WriteFile(promptFile, []byte("Second prompt"), 0o600))

	prompts := env.server.Optimizer.Prompts()
	require.Eventually(t, func() bool {
		return prompts.SystemPrompt() == "Second prompt"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWriteServerInfo(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.APIKeys = []string{"k1", "k2"}
		c.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 30, BurstCapacity: 5, ByIP: true, ByAPIKey: true}
	})

	var out strings.Builder
	env.server.writeServerInfo(&out)
	info := out.String()

	assert.Contains(t, info, "POST /api/optimize")
	assert.Contains(t, info, "API authentication: ENABLED (2 keys configured)")
	assert.Contains(t, info, "Request size limit: 1048576 bytes (1.0 MB)")
	assert.Contains(t, info, "Rate limiting: ENABLED (30 requests/min, burst 5, per API key, else per IP)")
	assert.Contains(t, info, "Fallback policy: demo")
	assert.Contains(t, info, "PDF renderer: fpdf")
}
