// Package render turns optimized resume text into downloadable PDF documents.
package render

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"cvedge/internal/config"
	"cvedge/internal/errors"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

const (
	// FileName is the download name of every rendered document
	FileName = "CVEdge_Optimized_Resume.pdf"
	// MIMEType is the content type of a rendered document
	MIMEType = "application/pdf"
)

// Page layout in points
const (
	FontFamily      = "Helvetica"
	FontSize        = 11.0
	LineHeight      = 14.0
	Margin          = 72.0
	ParagraphSpacer = 14.4 // 0.2in
)

// Document is a rendered PDF held in memory
type Document struct {
	Bytes      []byte
	Paragraphs []string
	Pages      int
}

// Renderer renders text into a PDF document, one paragraph block per line
type Renderer interface {
	Render(ctx context.Context, text string) (*Document, error)
	Engine() string
}

// New returns the renderer selected by cfg.Engine
func New(cfg config.RendererConfig) (Renderer, error) {
	switch cfg.Engine {
	case "fpdf", "":
		return NewFPDFRenderer(), nil
	case "chromedp":
		return NewChromeRenderer(cfg.ChromePath, cfg.Timeout), nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported renderer engine: %s", cfg.Engine), nil)
	}
}

// SplitLines splits text on LF and CRLF. Empty lines are kept; "" yields one empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// Placeholder replaces characters the core fonts cannot draw
const Placeholder = "?"

// substitutes spells out characters common in generated text that cp1252 lacks
var substitutes = map[rune]string{
	'→': "->", '←': "<-", '⇒': "=>", '↔': "<->",
	'✓': "v", '✔': "v", '✗': "x", '✘': "x",
	'≥': ">=", '≤': "<=", '≠': "!=", '−': "-", '‐': "-", '‑': "-",
	'●': "•", '▪': "•", '◦': "•", '■': "•", '★': "*",
	'ł': "l", 'Ł': "L", 'đ': "d", 'Đ': "D", 'ı': "i",
}

// encodeLines converts lines to the code page of the PDF core fonts.
// Characters outside cp1252 are transliterated, reduced to their base letter, or replaced by Placeholder.
// Only malformed UTF-8 is an error.
func encodeLines(lines []string) ([]string, error) {
	encoder := charmap.Windows1252.NewEncoder()
	encoded := make([]string, len(lines))
	for i, line := range lines {
		if !utf8.ValidString(line) {
			return nil, errors.NewRenderError(errors.ErrCodeRenderFailed,
				fmt.Sprintf("line %d is not valid UTF-8", i+1), nil).
				WithContext("line", i+1)
		}
		out, err := encoder.String(toCodePage(line))
		if err != nil {
			return nil, errors.NewRenderError(errors.ErrCodeRenderFailed,
				fmt.Sprintf("line %d contains characters that cannot be rendered", i+1), err).
				WithContext("line", i+1)
		}
		encoded[i] = out
	}
	return encoded, nil
}

// toCodePage rewrites line so that every rune has a cp1252 byte
func toCodePage(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for _, r := range line {
		if encodable(r) {
			b.WriteRune(r)
			continue
		}
		if sub, ok := substitutes[r]; ok {
			b.WriteString(sub)
			continue
		}
		if base := baseLetter(r); base != 0 {
			b.WriteRune(base)
			continue
		}
		b.WriteString(Placeholder)
	}
	return b.String()
}

func encodable(r rune) bool {
	_, ok := charmap.Windows1252.EncodeRune(r)
	return ok
}

// baseLetter strips combining marks, so "ą" becomes "a". It returns 0 when that does not help.
func baseLetter(r rune) rune {
	decomposed := norm.NFD.String(string(r))
	base, _ := utf8.DecodeRuneInString(decomposed)
	if base == r || !encodable(base) {
		return 0
	}
	return base
}
