package cli

import (
	"fmt"

	"cvedge/internal/common"
	"cvedge/internal/render"
	"cvedge/internal/utils"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [pdf-file]",
	Short: "Print the text rows of a PDF document",
	Long: `Read a PDF document and print its text rows in reading order, one per line.
Use --summary to print the page count and file size instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectSummary bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectSummary, "summary", false, "Print page count and size instead of text")
}

func runInspect(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	filename := args[0]
	if !utils.IsPDFFile(filename) {
		logger.Warn("File may not be a PDF document", "filename", filename)
	}

	data, err := common.NewFileProcessor(logger).ReadBytes(filename)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectSummary {
		pages, err := render.CountPages(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "File: %s\n", filename)
		fmt.Fprintf(out, "Size: %s\n", utils.FormatFileSize(int64(len(data))))
		fmt.Fprintf(out, "Pages: %d\n", pages)
		return nil
	}

	lines, err := render.ExtractLines(data)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
