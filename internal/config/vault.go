package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"cvedge/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets holds the KVv2 paths read at startup. An empty path is skipped.
type VaultSecrets struct {
	CompletionKey string `mapstructure:"completionKey"` // "api_key", used only when the environment has none
	APIKeys       string `mapstructure:"apiKeys"`       // "keys", comma separated
	TLSCerts      string `mapstructure:"tlsCerts"`      // "cert", "key" and "ca" PEM content
}

// VaultSecret is one KVv2 secret version
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// VaultClient reads KVv2 secrets
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// NewVaultClient connects to Vault and checks its health
func NewVaultClient(cfg VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	apiConfig := api.DefaultConfig()
	if cfg.Address != "" {
		apiConfig.Address = cfg.Address
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := resolveVaultToken(cfg, logger)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault at %s: %w", apiConfig.Address, err)
	}
	logger.Info("Connected to Vault",
		"address", apiConfig.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken prefers vault.token and falls back to vault.tokenFile
func resolveVaultToken(cfg VaultConfig, logger *errors.Logger) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		logger.Debug("Reading Vault token from file", "file", cfg.TokenFile)
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// ReadSecret reads the latest version of a KVv2 secret
func (vc *VaultClient) ReadSecret(path string) (*VaultSecret, error) {
	vc.logger.Debug("Reading secret from Vault", "path", path)

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}

	data, err := vc.extractSecretData(secret, path)
	if err != nil {
		return nil, err
	}

	metadata, ok := secret.Data["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	version, err := parseVersionValue(metadata["version"], path)
	if err != nil {
		return nil, err
	}

	return &VaultSecret{Data: data, Version: version}, nil
}

func (vc *VaultClient) extractSecretData(secret *api.Secret, path string) (map[string]any, error) {
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	return data, nil
}

// parseVersionValue accepts the numeric shapes Vault's JSON decoding can produce
func parseVersionValue(raw any, path string) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		version, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, raw)
	}
}

// String returns one string field of a secret
func (s *VaultSecret) String(key string) (string, error) {
	value, ok := s.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found", key)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string", key)
	}
	return str, nil
}

// secretLoader reads one secret path and applies it to the config
type secretLoader struct {
	name  string
	path  string
	skip  func(*Config) bool
	apply func(*Config, *VaultSecret, *errors.Logger) error
}

func secretLoaders(cfg *Config) []secretLoader {
	return []secretLoader{
		{name: "server API keys", path: cfg.Vault.Secrets.APIKeys, apply: applyAPIKeysSecret},
		{name: "completion API key", path: cfg.Vault.Secrets.CompletionKey, skip: hasCompletionKey, apply: applyCompletionKeySecret},
		{name: "TLS certificates", path: cfg.Vault.Secrets.TLSCerts, apply: applyTLSSecret},
	}
}

// ApplyVaultSecrets fills config from Vault when vault.enabled is set
func ApplyVaultSecrets(cfg *Config, logger *errors.Logger) error {
	if logger == nil {
		logger = errors.NewLoggerWithWriter(io.Discard, slog.LevelInfo)
	}
	if !cfg.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil
	}

	client, err := NewVaultClient(cfg.Vault, logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "Failed to initialize Vault client", err)
	}

	for _, loader := range secretLoaders(cfg) {
		if loader.path == "" {
			continue
		}
		if loader.skip != nil && loader.skip(cfg) {
			logger.Debug("Secret already configured, skipping Vault lookup", "secret", loader.name)
			continue
		}

		secret, err := client.ReadSecret(loader.path)
		if err == nil {
			err = loader.apply(cfg, secret, logger)
		}
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("failed to load %s from vault", loader.name), err).
				WithContext("path", loader.path)
		}
		logger.Debug("Secret applied from Vault", "secret", loader.name, "path", loader.path, "version", secret.Version)
	}

	return nil
}

func applyAPIKeysSecret(cfg *Config, secret *VaultSecret, logger *errors.Logger) error {
	value, err := secret.String("keys")
	if err != nil {
		return err
	}
	keys := splitAndTrim(value)
	if len(keys) == 0 {
		logger.Warn("No API keys found in Vault secret")
		return nil
	}
	cfg.Server.APIKeys = keys
	logger.Info("API keys loaded from Vault", "count", len(keys))
	return nil
}

// hasCompletionKey reports whether the environment already supplied the credential
func hasCompletionKey(cfg *Config) bool {
	return cfg.AI.APIKey != ""
}

func applyCompletionKeySecret(cfg *Config, secret *VaultSecret, logger *errors.Logger) error {
	value, err := secret.String("api_key")
	if err != nil {
		return err
	}
	if applyCompletionKeyToConfig(cfg, value) {
		logger.Info("Completion API key loaded from Vault", "provider", cfg.AI.Provider)
	} else {
		logger.Warn("Empty completion API key found in Vault")
	}
	return nil
}

// applyCompletionKeyToConfig sets the process credential unless one is already present.
// It reports whether the key was applied.
func applyCompletionKeyToConfig(cfg *Config, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || cfg.AI.APIKey != "" {
		return false
	}
	cfg.AI.APIKey = key
	cfg.AI.APIKeySource = KeySourceVault
	return true
}

func applyTLSSecret(cfg *Config, secret *VaultSecret, logger *errors.Logger) error {
	if err := validateTLSDeprecatedFields(secret, logger); err != nil {
		return err
	}
	loaded := loadSingleCertificate(secret, "cert", &cfg.Server.TLS.CertContent, "TLS certificate content", logger) +
		loadSingleCertificate(secret, "key", &cfg.Server.TLS.KeyContent, "TLS private key content", logger) +
		loadSingleCertificate(secret, "ca", &cfg.Server.TLS.CAContent, "TLS CA certificate content", logger)
	logger.Info("TLS certificates loaded from Vault", "certificates_loaded", loaded)
	return nil
}

// loadSingleCertificate copies one non-empty PEM field into target and reports 1 if it did
func loadSingleCertificate(secret *VaultSecret, key string, target *string, description string, logger *errors.Logger) int {
	content, ok := secret.Data[key].(string)
	if !ok || content == "" {
		return 0
	}
	*target = content
	logger.Debug(description+" loaded from Vault", "content_length", len(content))
	return 1
}

// validateTLSDeprecatedFields rejects file path fields; Vault must hold PEM content
func validateTLSDeprecatedFields(secret *VaultSecret, logger *errors.Logger) error {
	for _, field := range []string{"cert_file", "key_file", "ca_file"} {
		if _, found := secret.Data[field]; found {
			logger.Warn("Unsupported field in Vault TLS secret", "field", field)
			return fmt.Errorf("vault TLS configuration error: '%s' field is no longer supported. Store certificate content in '%s' field instead",
				field, strings.TrimSuffix(field, "_file"))
		}
	}
	return nil
}
