package cli

import (
	"context"

	"cvedge/internal/ai"
	"cvedge/internal/common"
	"cvedge/internal/render"
	"cvedge/internal/types"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [resume-file]",
	Short: "Optimize a resume, optionally for a target job description",
	Long: `Optimize a plain-text resume using the configured completion service.

Pass --job to tailor the result to a job description and --structured to also
receive improvement notes and an ATS score. Use --pdf to export the optimized
text as a PDF document in the same run.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if optimizeConfig.OutputFormat == "" {
			optimizeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		if err := common.ValidateOutputFormat(optimizeConfig.OutputFormat, cfg.App.SupportedFormats); err != nil {
			return err
		}
		if optimizeOpts.apiKey == "" {
			return cfg.ValidateCredential()
		}
		return nil
	},
	RunE: runOptimize,
}

type optimizeOptions struct {
	jobFile    string
	apiKey     string
	structured bool
	pdfFile    string
}

var (
	optimizeConfig common.CommandConfig
	optimizeOpts   optimizeOptions
)

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	optimizeCmd.Flags().StringVar(&optimizeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	optimizeCmd.Flags().StringVar(&optimizeOpts.jobFile, "job", "", "Job description file to tailor the resume to")
	optimizeCmd.Flags().StringVar(&optimizeOpts.apiKey, "api-key", "", "Completion service API key for this run (overrides config)")
	optimizeCmd.Flags().BoolVar(&optimizeOpts.structured, "structured", false, "Request improvement notes and an ATS score (default from config)")
	optimizeCmd.Flags().StringVar(&optimizeOpts.pdfFile, "pdf", "", "Also render the optimized text to this PDF file")

	_ = optimizeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	optimizer, err := buildOptimizer(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := optimizer.Close(); err != nil {
			logger.Warn("Failed to close optimizer", "error", err)
		}
	}()

	// Validate the renderer up front so a bad engine fails before the completion call
	var renderer render.Renderer
	if optimizeOpts.pdfFile != "" {
		if renderer, err = render.New(cfg.Renderer); err != nil {
			return err
		}
	}

	fileProcessor := common.NewFileProcessor(logger)
	jobDescription := ""
	if optimizeOpts.jobFile != "" {
		contents, err := fileProcessor.ValidateAndReadFiles(optimizeOpts.jobFile)
		if err != nil {
			return err
		}
		jobDescription = contents[0]
	}

	var structured *bool
	if cmd.Flags().Changed("structured") {
		structured = &optimizeOpts.structured
	}

	createInput := func(contents []string) (types.OptimizationRequest, error) {
		if err := common.ValidateResumeText(contents[0]); err != nil {
			return types.OptimizationRequest{}, err
		}
		return types.OptimizationRequest{
			ResumeText:     contents[0],
			JobDescription: jobDescription,
			APIKey:         optimizeOpts.apiKey,
			Structured:     structured,
		}, nil
	}

	logDetails := func(req types.OptimizationRequest, cfg common.CommandConfig) {
		logger.Info("Starting resume optimization",
			"resume_chars", len(req.ResumeText),
			"job_chars", len(req.JobDescription),
			"caller_credential", req.APIKey != "",
			"output_format", cfg.OutputFormat)
	}

	optimizeOperation := func(ctx context.Context, req types.OptimizationRequest) (types.OptimizationResult, *ai.TokenUsage, error) {
		return optimizer.Optimize(ctx, req)
	}

	result, err := common.RunAICommand(
		cmd.Context(),
		logger,
		optimizeConfig,
		args,
		createInput,
		optimizeOperation,
		logDetails,
	)
	if err != nil {
		return err
	}
	if result.IsDemo() {
		logger.Warn("Completion service unavailable, demo result returned")
	}

	if renderer != nil {
		if err := renderToFile(cmd.Context(), renderer, fileProcessor, result.OptimizedText, optimizeOpts.pdfFile); err != nil {
			return err
		}
		logger.Info("PDF written", "file", optimizeOpts.pdfFile, "engine", renderer.Engine())
	}

	logger.Info("Resume optimization completed", "source", result.Source)
	return nil
}

func renderToFile(ctx context.Context, renderer render.Renderer, fp *common.FileProcessor, text, filename string) error {
	if err := fp.ValidateOutputFile(filename); err != nil {
		return err
	}
	doc, err := renderer.Render(ctx, text)
	if err != nil {
		return err
	}
	return fp.WriteBytes(filename, doc.Bytes)
}
