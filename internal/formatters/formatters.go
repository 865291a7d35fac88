package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cvedge/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "OptimizationResult", &OptimizationTextFormatter{})
	registry.RegisterFormatter("markdown", "OptimizationResult", &OptimizationMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats in sorted order
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.OptimizationResult, *types.OptimizationResult:
		return "OptimizationResult"
	default:
		return "any"
	}
}

func asOptimizationResult(data any) (types.OptimizationResult, error) {
	switch v := data.(type) {
	case types.OptimizationResult:
		return v, nil
	case *types.OptimizationResult:
		if v != nil {
			return *v, nil
		}
	}
	return types.OptimizationResult{}, fmt.Errorf("expected OptimizationResult, got %T", data)
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// OptimizationTextFormatter handles text formatting for optimization results
type OptimizationTextFormatter struct{}

func (otf *OptimizationTextFormatter) Format(data any) (string, error) {
	result, err := asOptimizationResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== OPTIMIZED RESUME ===\n\n")
	output.WriteString(result.OptimizedText)
	output.WriteString("\n")

	if result.ATSScore != nil || len(result.Improvements) > 0 {
		output.WriteString("\n=== ATS ANALYSIS ===\n")
		if result.ATSScore != nil {
			fmt.Fprintf(&output, "Score: %d/100\n", *result.ATSScore)
		}
		if len(result.Improvements) > 0 {
			output.WriteString("\nImprovements:\n")
			for _, improvement := range result.Improvements {
				fmt.Fprintf(&output, "- %s\n", improvement)
			}
		}
	}

	output.WriteString("\n")
	output.WriteString(sourceLine(result))
	output.WriteString("\n")

	return output.String(), nil
}

func (otf *OptimizationTextFormatter) SupportedType() string {
	return "OptimizationResult"
}

// OptimizationMarkdownFormatter handles markdown formatting for optimization results
type OptimizationMarkdownFormatter struct{}

func (omf *OptimizationMarkdownFormatter) Format(data any) (string, error) {
	result, err := asOptimizationResult(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Optimized Resume\n\n")
	output.WriteString(result.OptimizedText)
	output.WriteString("\n\n")

	if result.ATSScore != nil {
		output.WriteString("## ATS Score\n\n")
		fmt.Fprintf(&output, "**%d/100**\n\n", *result.ATSScore)
	}

	if len(result.Improvements) > 0 {
		output.WriteString("## Improvements\n\n")
		for _, improvement := range result.Improvements {
			fmt.Fprintf(&output, "- %s\n", improvement)
		}
		output.WriteString("\n")
	}

	fmt.Fprintf(&output, "_%s_\n", sourceLine(result))

	return output.String(), nil
}

func (omf *OptimizationMarkdownFormatter) SupportedType() string {
	return "OptimizationResult"
}

func sourceLine(result types.OptimizationResult) string {
	if result.IsDemo() {
		return "Source: demo (the optimization service was not reachable)"
	}
	if result.Model != "" {
		return fmt.Sprintf("Source: %s (%s)", result.Source, result.Model)
	}
	return "Source: " + result.Source
}
