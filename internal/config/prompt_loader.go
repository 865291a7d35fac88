package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadPromptFile reads a prompt file and returns its trimmed content.
// Empty files are rejected so a truncated write never blanks the system prompt.
func LoadPromptFile(filePath string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for prompt file '%s': %w", filePath, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("prompt file not found: %s", absPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file '%s': %w", absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("prompt file '%s' is empty", absPath)
	}

	log.Printf("[CONFIG] Loaded system prompt from file: %s (%d characters)", absPath, len(trimmed))
	return trimmed, nil
}

// ValidatePromptFile checks that a configured system prompt file exists before startup
func (c *Config) ValidatePromptFile() error {
	if c.AI.SystemPromptFile == "" {
		return nil
	}

	absPath, err := filepath.Abs(c.AI.SystemPromptFile)
	if err != nil {
		return fmt.Errorf("invalid path for system prompt: %s", c.AI.SystemPromptFile)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("system prompt file not found: %s", absPath)
	}

	return nil
}

// ResolveSystemPrompt returns the configured system prompt. A prompt file takes
// precedence over the inline systemPrompt value; an empty result means the built-in default.
func (c *Config) ResolveSystemPrompt() (string, error) {
	if c.AI.SystemPromptFile != "" {
		return LoadPromptFile(c.AI.SystemPromptFile)
	}
	return strings.TrimSpace(c.AI.SystemPrompt), nil
}
