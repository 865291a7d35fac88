package cli

import (
	"cvedge/internal/common"
	"cvedge/internal/render"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [text-file]",
	Short: "Render plain text to a PDF document",
	Long: `Render a plain-text file to an A4 PDF document. Every line becomes its own
paragraph; blank lines are kept as vertical space.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var renderOutput string

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", render.FileName, "PDF output file path")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	renderer, err := render.New(cfg.Renderer)
	if err != nil {
		return err
	}

	fileProcessor := common.NewFileProcessor(logger)
	contents, err := fileProcessor.ValidateAndReadFiles(args[0])
	if err != nil {
		return err
	}

	if err := renderToFile(cmd.Context(), renderer, fileProcessor, contents[0], renderOutput); err != nil {
		return err
	}

	logger.Info("PDF written", "file", renderOutput, "engine", renderer.Engine())
	return nil
}
