package cli

import (
	"fmt"

	"cvedge/internal/config"
	"cvedge/internal/render"
	"cvedge/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface and HTTP API",
	Long: `Start an HTTP server with the resume submission page and the JSON API.

Available endpoints:
- GET  /: Resume submission page
- POST /: Optimize from the submission page
- POST /api/optimize: Optimize a resume (JSON)
- POST /download: Download optimized text as PDF
- GET  /health: Health check endpoint
- GET  /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded server config
func applyServeFlags(cmd *cobra.Command, cfg *config.ServerConfig) {
	overrides := []struct {
		flag   string
		target *string
	}{
		{"port", &cfg.Port},
		{"host", &cfg.Host},
		{"tls-mode", &cfg.TLS.Mode},
		{"cert-file", &cfg.TLS.CertFile},
		{"key-file", &cfg.TLS.KeyFile},
		{"ca-file", &cfg.TLS.CAFile},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.target, _ = cmd.Flags().GetString(o.flag)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	applyServeFlags(cmd, &cfg.Server)
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.ValidateCredential(); err != nil {
		return err
	}

	optimizer, err := buildOptimizer(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := optimizer.Close(); err != nil {
			logger.Warn("Failed to close optimizer", "error", err)
		}
	}()

	renderer, err := render.New(cfg.Renderer)
	if err != nil {
		return err
	}

	return server.NewServer(cfg, server.ConfigFrom(cfg, Version), optimizer, renderer, logger).Start()
}
