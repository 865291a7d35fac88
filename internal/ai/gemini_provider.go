package ai

import (
	"context"
	"fmt"

	"cvedge/internal/config"
	"cvedge/internal/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// GeminiProvider implements CompletionProvider for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	config *config.AIConfig
	logger *errors.Logger
}

var _ CompletionProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider authenticated with apiKey
func NewGeminiProvider(cfg *config.AIConfig, apiKey string, logger *errors.Logger) (CompletionProvider, error) {
	if apiKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey, "Gemini API key is required", nil)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Complete sends the prompt with the system message as the system instruction
func (g *GeminiProvider) Complete(ctx context.Context, prompt Prompt, structured bool) (*Completion, error) {
	ctx, span := otel.Tracer("cvedge.ai.gemini").Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(g.config.Temperature)),
		attribute.Bool("ai.structured", structured),
	)

	genaiConfig := g.buildGenerateConfig(prompt.System, structured)

	result, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt.User), genaiConfig)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	usage := extractTokenUsage(result)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))

	model := result.ModelVersion
	if model == "" {
		model = g.config.Model
	}

	return &Completion{
		Text:  result.Text(),
		Model: model,
		Usage: usage,
	}, nil
}

func (g *GeminiProvider) buildGenerateConfig(system string, structured bool) *genai.GenerateContentConfig {
	genaiConfig := &genai.GenerateContentConfig{}

	if system != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	if g.config.Temperature > 0 {
		genaiConfig.Temperature = genai.Ptr(g.config.Temperature)
	}

	if structured {
		genaiConfig.ResponseMIMEType = "application/json"
		genaiConfig.ResponseSchema = geminiReplySchema()
	}

	return genaiConfig
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Name: g.config.Model, Provider: "gemini"}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout(g.config))
	defer cancel()

	model, err := g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed", "model", g.config.Model, "provider", "gemini", "error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	info.Version = model.Version
	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"provider", "gemini",
		"display_name", info.DisplayName,
		"version", info.Version)

	return info
}

// Close implements CompletionProvider
func (g *GeminiProvider) Close() error {
	return nil
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
