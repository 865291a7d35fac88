package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cvedge/internal/config"
	"cvedge/internal/errors"
	"cvedge/internal/types"
)

const defaultModelCheckTimeout = 10 * time.Second

// Optimizer turns optimization requests into completion calls
type Optimizer struct {
	config   *config.AIConfig
	prompts  *PromptSet
	factory  ProviderFactory
	provider CompletionProvider // bound to the process credential, nil when none is configured
	breaker  *CompletionBreaker
	policy   FallbackPolicy
	score    func() int
	logger   *errors.Logger
}

// Option customizes an Optimizer
type Option func(*Optimizer)

// WithProviderFactory replaces the provider constructor chosen from ai.provider
func WithProviderFactory(factory ProviderFactory) Option {
	return func(o *Optimizer) { o.factory = factory }
}

// WithPromptSet shares a prompt set, typically one updated by the prompt file watcher
func WithPromptSet(prompts *PromptSet) Option {
	return func(o *Optimizer) { o.prompts = prompts }
}

// WithScoreFunc replaces the random demo score source
func WithScoreFunc(score func() int) Option {
	return func(o *Optimizer) { o.score = score }
}

// ProviderFactoryFor returns the constructor for a configured provider name
func ProviderFactoryFor(provider string) (ProviderFactory, error) {
	switch provider {
	case "openai", "":
		return NewOpenAIProvider, nil
	case "gemini":
		return NewGeminiProvider, nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", provider), nil)
	}
}

// NewOptimizer creates an optimizer. The process credential is taken from cfg.APIKey;
// without one, only requests carrying their own key reach the completion service.
func NewOptimizer(cfg *config.AIConfig, logger *errors.Logger, opts ...Option) (*Optimizer, error) {
	policy, err := ParseFallbackPolicy(cfg.FallbackPolicy)
	if err != nil {
		return nil, err
	}

	o := &Optimizer{
		config: cfg,
		policy: policy,
		score:  randomDemoScore,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.prompts == nil {
		o.prompts = NewPromptSet(cfg.SystemPrompt)
	}
	if o.factory == nil {
		if o.factory, err = ProviderFactoryFor(cfg.Provider); err != nil {
			return nil, err
		}
	}

	logger.Debug("Initializing optimizer",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"temperature", cfg.Temperature,
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries,
		"structured", cfg.StructuredOutput,
		"fallback_policy", string(policy),
		"key_source", cfg.APIKeySource)

	if cfg.APIKey != "" {
		provider, err := o.factory(cfg, cfg.APIKey, logger)
		if err != nil {
			return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create AI provider", err)
		}
		o.provider = provider
		o.breaker = NewCompletionBreaker("AI-Completion", cfg.CircuitBreaker, logger)
	} else {
		logger.Warn("No API key configured for the completion service", "provider", cfg.Provider, "fallback_policy", string(policy))
	}

	return o, nil
}

// Prompts returns the prompt set used to build every request
func (o *Optimizer) Prompts() *PromptSet {
	return o.prompts
}

// Policy returns the configured fallback policy
func (o *Optimizer) Policy() FallbackPolicy {
	return o.policy
}

// Optimize runs Complete and applies the fallback policy to its failure
func (o *Optimizer) Optimize(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, *TokenUsage, error) {
	result, usage, err := o.Complete(ctx, req)
	if err == nil {
		return result, usage, nil
	}

	callerCredential := strings.TrimSpace(req.APIKey) != ""
	if !o.policy.Substitutes(err, callerCredential) {
		return types.OptimizationResult{}, nil, err
	}

	o.logger.Warn("Completion failed, returning demo result",
		"error_code", errors.CodeOf(err),
		"error", err.Error())

	return DemoResult(strings.TrimSpace(req.ResumeText), o.score()), nil, nil
}

// Complete performs one completion for req and returns the raw outcome.
// Calls using req.APIKey bypass the circuit breaker so a bad caller key cannot open it.
func (o *Optimizer) Complete(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, *TokenUsage, error) {
	resumeText := strings.TrimSpace(req.ResumeText)
	if resumeText == "" {
		return types.OptimizationResult{}, nil, errors.NewValidationError(errors.ErrCodeEmptyInput,
			"resume text is required", nil)
	}

	structured := o.config.StructuredOutput
	if req.Structured != nil {
		structured = *req.Structured
	}
	prompt := o.prompts.Build(resumeText, req.JobDescription, structured)

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	completion, err := o.complete(ctx, strings.TrimSpace(req.APIKey), prompt, structured)
	if err != nil {
		return types.OptimizationResult{}, nil, o.classify(ctx, err)
	}

	result, err := interpretCompletion(completion, structured)
	if err != nil {
		return types.OptimizationResult{}, nil, err
	}
	return result, completion.Usage, nil
}

func (o *Optimizer) complete(ctx context.Context, overrideKey string, prompt Prompt, structured bool) (*Completion, error) {
	if overrideKey != "" {
		provider, err := o.factory(o.config, overrideKey, o.logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = provider.Close() }()

		return executeWithRetry(ctx, o.logger, o.config.MaxRetries, "optimize", func() (*Completion, error) {
			return provider.Complete(ctx, prompt, structured)
		})
	}

	if o.provider == nil {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			fmt.Sprintf("no API key configured for provider %s", o.config.Provider), nil)
	}

	return o.breaker.Execute(func() (*Completion, error) {
		return executeWithRetry(ctx, o.logger, o.config.MaxRetries, "optimize", func() (*Completion, error) {
			return o.provider.Complete(ctx, prompt, structured)
		})
	})
}

// classify maps provider and transport failures onto the application error codes
func (o *Optimizer) classify(ctx context.Context, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if isBreakerOpen(err) {
		return errors.NewAIError(errors.ErrCodeAIServiceFailed, "completion service circuit breaker is open", err)
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewAIError(errors.ErrCodeAITimeout,
			fmt.Sprintf("completion call did not finish within %s", o.config.Timeout), err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "completion service did not respond in time", err)
		}
		return errors.NewNetworkError(errors.ErrCodeAIServiceFailed, "completion service unreachable", err)
	}

	aiErr := errors.NewAIError(errors.ErrCodeAIServiceFailed, "completion call failed", err)
	if status := upstreamStatus(err); status != 0 {
		aiErr = aiErr.WithContext("upstream_status", status)
	}
	return aiErr
}

// interpretCompletion turns a reply into a result according to the requested mode
func interpretCompletion(completion *Completion, structured bool) (types.OptimizationResult, error) {
	if completion == nil {
		return types.OptimizationResult{}, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "completion returned no reply", nil)
	}

	if !structured {
		text := strings.TrimSpace(completion.Text)
		if text == "" {
			return types.OptimizationResult{}, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "completion returned empty text", nil)
		}
		return types.OptimizationResult{
			OptimizedText: text,
			Source:        types.SourceAI,
			Model:         completion.Model,
		}, nil
	}

	reply, err := ParseStructuredReply(completion.Text)
	if err != nil {
		return types.OptimizationResult{}, err
	}

	score := reply.ATSScore
	return types.OptimizationResult{
		OptimizedText: strings.TrimSpace(reply.OptimizedText),
		Improvements:  reply.Improvements,
		ATSScore:      &score,
		Source:        types.SourceAI,
		Model:         completion.Model,
	}, nil
}

// GetModelInfo returns information about the AI model for health checks
func (o *Optimizer) GetModelInfo(ctx context.Context) *ModelInfo {
	if o.provider == nil {
		return &ModelInfo{
			Name:     o.config.Model,
			Provider: o.config.Provider,
			Error:    "no API key configured",
		}
	}
	return o.provider.GetModelInfo(ctx)
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (o *Optimizer) GetCircuitBreakerStats() map[string]any {
	stats := o.breaker.GetStats()
	stats["healthy"] = o.breaker.IsHealthy()
	return stats
}

// Close releases the process provider
func (o *Optimizer) Close() error {
	if o.provider == nil {
		return nil
	}
	return o.provider.Close()
}

func modelCheckTimeout(cfg *config.AIConfig) time.Duration {
	if cfg.ModelCheckTimeout > 0 {
		return cfg.ModelCheckTimeout
	}
	return defaultModelCheckTimeout
}
