package ai

import (
	"context"

	"cvedge/internal/config"
	"cvedge/internal/errors"
)

// CompletionProvider sends one two-message prompt to a hosted chat-completion service
type CompletionProvider interface {
	// Complete returns the raw reply text. With structured set the service is asked
	// for the JSON reply shape described by StructuredReplySchema.
	Complete(ctx context.Context, prompt Prompt, structured bool) (*Completion, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// ProviderFactory builds a provider bound to one credential
type ProviderFactory func(cfg *config.AIConfig, apiKey string, logger *errors.Logger) (CompletionProvider, error)

// Prompt is the system and user message pair sent to the completion service
type Prompt struct {
	System string
	User   string
}

// Completion is a provider reply before it is interpreted
type Completion struct {
	Text  string
	Model string
	Usage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
