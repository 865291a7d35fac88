package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cvedge/internal/config"
	"cvedge/internal/errors"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIProvider implements CompletionProvider for OpenAI-compatible chat completion endpoints
type OpenAIProvider struct {
	client *openai.Client
	config *config.AIConfig
	logger *errors.Logger
}

var _ CompletionProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider authenticated with apiKey
func NewOpenAIProvider(cfg *config.AIConfig, apiKey string, logger *errors.Logger) (CompletionProvider, error) {
	if apiKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey, "OpenAI API key is required", nil)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger,
	}, nil
}

// Complete sends the prompt as a system and a user message
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt, structured bool) (*Completion, error) {
	ctx, span := otel.Tracer("cvedge.ai.openai").Start(ctx, "openai.chat_completion")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", p.config.Model),
		attribute.Bool("ai.structured", structured),
		attribute.Int("input.prompt_length", len(prompt.User)),
	)

	req := openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: p.config.Temperature,
	}

	if structured {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "optimized_resume",
				Schema: json.RawMessage(structuredWireSchema),
				Strict: true,
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if len(resp.Choices) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "completion returned no choices", nil)
	}

	usage := &TokenUsage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:  int64(resp.Usage.TotalTokens),
	}
	span.SetAttributes(
		attribute.Int64("ai.tokens.input", usage.InputTokens),
		attribute.Int64("ai.tokens.output", usage.OutputTokens),
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
		attribute.Bool("success", true),
	)

	model := resp.Model
	if model == "" {
		model = p.config.Model
	}

	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: usage,
	}, nil
}

// GetModelInfo checks that the configured model is visible to the credential
func (p *OpenAIProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Name: p.config.Model, Provider: "openai"}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout(p.config))
	defer cancel()

	model, err := p.client.GetModel(checkCtx, p.config.Model)
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		p.logger.Warn("Model availability check failed", "model", p.config.Model, "provider", "openai", "error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.ID
	info.Version = model.OwnedBy
	p.logger.Debug("Model availability check successful", "model", p.config.Model, "provider", "openai")
	return info
}

// Close implements CompletionProvider. The HTTP client holds no resources of its own.
func (p *OpenAIProvider) Close() error {
	return nil
}
