package ai

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"cvedge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
}

func TestCompletionBreakerDisabled(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Enabled = false

	cb := NewCompletionBreaker("AI-Completion", cfg, nil)
	assert.Nil(t, cb)
	assert.True(t, cb.IsHealthy())
	assert.Equal(t, false, cb.GetStats()["enabled"])

	result, err := cb.Execute(func() (*Completion, error) { return &Completion{Text: "ok"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
}

func TestCompletionBreakerTrips(t *testing.T) {
	cb := NewCompletionBreaker("AI-Completion", testBreakerConfig(), nil)
	require.NotNil(t, cb)

	stats := cb.GetStats()
	assert.Equal(t, "AI-Completion", stats["name"])
	assert.Equal(t, "closed", stats["state"])

	upstream := stderrors.New("upstream down")
	for range 2 {
		_, err := cb.Execute(func() (*Completion, error) { return nil, upstream })
		assert.ErrorIs(t, err, upstream)
	}

	assert.False(t, cb.IsHealthy())
	assert.Equal(t, "open", cb.GetStats()["state"])

	called := false
	_, err := cb.Execute(func() (*Completion, error) {
		called = true
		return &Completion{}, nil
	})
	assert.True(t, isBreakerOpen(err))
	assert.False(t, called, "open breaker must not reach the provider")
}

func TestCompletionBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCompletionBreaker("AI-Completion", testBreakerConfig(), nil)

	for range 3 {
		_, err := cb.Execute(func() (*Completion, error) { return nil, context.Canceled })
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.True(t, cb.IsHealthy())
}
