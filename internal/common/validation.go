package common

import (
	"fmt"
	"slices"
	"strings"

	"cvedge/internal/errors"
)

// EmptyResumeMessage is shown when there is no resume text to optimize
const EmptyResumeMessage = "Please paste your resume text before optimizing."

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the list of supported formats
func GetSupportedFormats(supportedFormats []string) []string {
	return supportedFormats
}

// ValidateResumeText rejects resume text that is empty after trimming whitespace
func ValidateResumeText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NewValidationError(errors.ErrCodeEmptyInput, EmptyResumeMessage, nil)
	}
	return nil
}
