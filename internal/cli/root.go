package cli

import (
	"context"

	"cvedge/internal/ai"
	"cvedge/internal/config"
	"cvedge/internal/errors"

	"github.com/spf13/cobra"
)

type configKeyType struct{}
type loggerKeyType struct{}
type optionsKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}
var optionsKey = optionsKeyType{}

var rootCmd = &cobra.Command{
	Use:   "cvedge",
	Short: "Optimize resumes with AI and export them as PDF",
	Long: `CVEdge sends your resume, and optionally a target job description, to a
chat-completion service that rewrites it for ATS compatibility, clarity and
impact. The optimized text can be exported as a PDF document.

Run "cvedge serve" for the web interface and HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command with cfg and logger available to every subcommand.
// opts are applied to every optimizer a command builds.
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts ...ai.Option) error {
	rootCmd.SetContext(withCommandContext(ctx, cfg, logger, opts))
	return rootCmd.Execute()
}

func withCommandContext(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts []ai.Option) context.Context {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	return context.WithValue(ctx, optionsKey, opts)
}

func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context")
}

func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context")
}

// buildOptimizer creates an optimizer using the configured system prompt and the options in ctx
func buildOptimizer(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*ai.Optimizer, error) {
	systemPrompt, err := cfg.ResolveSystemPrompt()
	if err != nil {
		return nil, err
	}
	opts := []ai.Option{ai.WithPromptSet(ai.NewPromptSet(systemPrompt))}
	if extra, ok := ctx.Value(optionsKey).([]ai.Option); ok {
		opts = append(opts, extra...)
	}
	return ai.NewOptimizer(&cfg.AI, logger, opts...)
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
