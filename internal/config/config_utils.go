package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyModelDefaults()
	c.applyCompletionKeyFallbacks()
	c.applyServerAPIKeyFallbacks()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()
}

// legacyKeyEnv returns the provider's conventional API key variable
func legacyKeyEnv(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// DefaultModels maps each provider to the model used when ai.model is unset
var DefaultModels = map[string]string{
	"openai": "gpt-4o-mini",
	"gemini": "gemini-2.0-flash",
}

func (c *Config) applyModelDefaults() {
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	if c.AI.Model == "" {
		c.AI.Model = DefaultModels[c.AI.Provider]
	}
}

// applyCompletionKeyFallbacks resolves the process-wide completion credential from the
// environment and records its source. Vault is consulted later, only if this finds nothing.
func (c *Config) applyCompletionKeyFallbacks() {
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.APIKey != "" {
		if os.Getenv("CVEDGE_AI_APIKEY") != "" {
			c.AI.APIKeySource = KeySourceEnv
		} else {
			c.AI.APIKeySource = KeySourceConfig
		}
		return
	}

	if key := strings.TrimSpace(os.Getenv(legacyKeyEnv(c.AI.Provider))); key != "" {
		c.AI.APIKey = key
		c.AI.APIKeySource = KeySourceEnv
		return
	}

	c.AI.APIKeySource = KeySourceNone
}

// applyServerAPIKeyFallbacks applies API key fallbacks from environment variables
func (c *Config) applyServerAPIKeyFallbacks() {
	// Keys from the environment arrive comma separated and may carry spaces
	c.Server.APIKeys = splitAndTrim(strings.Join(c.Server.APIKeys, ","))
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("CVEDGE_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// applyTLSDefaults applies default TLS configuration values
func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.Mode == "" {
		c.Server.TLS.Mode = "disabled"
	}
	if c.Server.TLS.Mode == "mutual" && c.Server.TLS.ClientAuthPolicy == "" {
		c.Server.TLS.ClientAuthPolicy = "require"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	}

	envVars := []string{
		"CVEDGE_AI_APIKEY",
		"CVEDGE_AI_PROVIDER",
		"CVEDGE_AI_MODEL",
		"CVEDGE_AI_FALLBACKPOLICY",
		"CVEDGE_SERVER_PORT",
		"CVEDGE_SERVER_HOST",
		"CVEDGE_APP_LOGLEVEL",
		"CVEDGE_VAULT_ENABLED",
		"OPENAI_API_KEY",
		"GEMINI_API_KEY",
	}

	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
		}
	}

	keyState := "***NOT SET***"
	if c.AI.APIKey != "" {
		keyState = "***CONFIGURED*** (" + c.AI.APIKeySource + ")"
	}
	log.Printf("[CONFIG] AI: provider=%s model=%s key=%s fallback=%s structured=%t",
		c.AI.Provider, c.AI.Model, keyState, c.AI.FallbackPolicy, c.AI.StructuredOutput)
	log.Printf("[CONFIG] Renderer: engine=%s", c.Renderer.Engine)
	log.Printf("[CONFIG] Server: %s:%s tls=%s vault=%t", c.Server.Host, c.Server.Port, c.Server.TLS.Mode, c.Vault.Enabled)
}
