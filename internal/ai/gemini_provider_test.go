package ai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cvedge/internal/config"
	"cvedge/internal/errors"
	"cvedge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini answers generateContent and model lookups like the Gemini API
type fakeGemini struct {
	mu     sync.Mutex
	keys   []string
	paths  []string
	bodies []map[string]any
	status int
	text   string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, r.Header.Get("x-goog-api-key"))
	f.paths = append(f.paths, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies = append(f.bodies, body)

		if f.status != 0 && f.status != http.StatusOK {
			w.WriteHeader(f.status)
			_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"model overloaded","status":"UNAVAILABLE"}}`, f.status)
			return
		}
		text, _ := json.Marshal(f.text)
		_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":%s}]},"finishReason":"STOP"}],`+
			`"usageMetadata":{"promptTokenCount":13,"candidatesTokenCount":21,"totalTokenCount":34},`+
			`"modelVersion":"gemini-2.0-flash-001"}`, text)
	case strings.Contains(r.URL.Path, "/models/"):
		_, _ = fmt.Fprintf(w, `{"name":"models/gemini-2.0-flash","displayName":"Gemini 2.0 Flash","version":"001"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGemini) lastBody(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies)
	return f.bodies[len(f.bodies)-1]
}

func newGeminiOptimizer(t *testing.T, fake *fakeGemini, mutate func(*config.AIConfig)) *Optimizer {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := testAIConfig()
	cfg.Provider = "gemini"
	cfg.Model = "gemini-2.0-flash"
	cfg.APIKey = "gm-process"
	cfg.BaseURL = server.URL + "/"
	if mutate != nil {
		mutate(cfg)
	}

	logger, err := errors.New("debug")
	require.NoError(t, err)
	optimizer, err := NewOptimizer(cfg, logger)
	require.NoError(t, err)
	return optimizer
}

func asMap(t *testing.T, value any) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	require.True(t, ok, "expected object, got %T", value)
	return m
}

func TestGeminiProviderFreeText(t *testing.T) {
	fake := &fakeGemini{text: "Optimized by Gemini"}
	optimizer := newGeminiOptimizer(t, fake, func(c *config.AIConfig) { c.Temperature = 0.4 })

	result, usage, err := optimizer.Optimize(context.Background(), types.OptimizationRequest{ResumeText: "Jane Roe, Engineer"})
	require.NoError(t, err)

	assert.Equal(t, "Optimized by Gemini", result.OptimizedText)
	assert.Equal(t, types.SourceAI, result.Source)
	assert.Equal(t, "gemini-2.0-flash-001", result.Model)
	assert.Nil(t, result.ATSScore)

	require.NotNil(t, usage)
	assert.Equal(t, int64(13), usage.InputTokens)
	assert.Equal(t, int64(21), usage.OutputTokens)
	assert.Equal(t, int64(34), usage.TotalTokens)

	assert.Equal(t, "gm-process", fake.keys[0])
	assert.Contains(t, fake.paths[0], "models/gemini-2.0-flash:generateContent")

	body := fake.lastBody(t)
	system := asMap(t, body["systemInstruction"])
	parts, ok := system["parts"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	assert.Equal(t, DefaultSystemPrompt, asMap(t, parts[0])["text"])

	contents, ok := body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 1)
	userParts, ok := asMap(t, contents[0])["parts"].([]any)
	require.True(t, ok)
	assert.Equal(t, "Jane Roe, Engineer", asMap(t, userParts[0])["text"])

	generation := asMap(t, body["generationConfig"])
	assert.InDelta(t, 0.4, generation["temperature"], 0.001)
	assert.NotContains(t, generation, "responseMimeType")
	assert.NotContains(t, generation, "responseSchema")
}

func TestGeminiProviderStructured(t *testing.T) {
	fake := &fakeGemini{text: `{"optimizedText":"Sharper resume","improvements":["Led with outcomes"],"atsScore":0}`}
	optimizer := newGeminiOptimizer(t, fake, func(c *config.AIConfig) { c.StructuredOutput = true })

	result, _, err := optimizer.Optimize(context.Background(), types.OptimizationRequest{ResumeText: "Jane Roe, Engineer"})
	require.NoError(t, err)
	assert.Equal(t, "Sharper resume", result.OptimizedText)
	assert.Equal(t, []string{"Led with outcomes"}, result.Improvements)
	require.NotNil(t, result.ATSScore)
	assert.Equal(t, 0, *result.ATSScore)

	generation := asMap(t, fake.lastBody(t)["generationConfig"])
	assert.Equal(t, "application/json", generation["responseMimeType"])

	schema := asMap(t, generation["responseSchema"])
	properties := asMap(t, schema["properties"])
	assert.Contains(t, properties, "optimizedText")
	assert.Contains(t, properties, "improvements")
	assert.Contains(t, properties, "atsScore")
	assert.ElementsMatch(t, []any{"optimizedText", "improvements", "atsScore"}, schema["required"])
}

func TestGeminiProviderUpstreamError(t *testing.T) {
	fake := &fakeGemini{status: http.StatusServiceUnavailable}
	optimizer := newGeminiOptimizer(t, fake, nil)

	_, _, err := optimizer.Complete(context.Background(), types.OptimizationRequest{ResumeText: "Jane"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIServiceFailed))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Context["upstream_status"])
}

func TestGeminiProviderModelInfo(t *testing.T) {
	optimizer := newGeminiOptimizer(t, &fakeGemini{}, nil)

	info := optimizer.GetModelInfo(context.Background())
	assert.True(t, info.Available, info.Error)
	assert.Equal(t, "gemini", info.Provider)
	assert.Equal(t, "Gemini 2.0 Flash", info.DisplayName)
}

func TestExtractTokenUsageWithoutMetadata(t *testing.T) {
	assert.Nil(t, extractTokenUsage(nil))
}
