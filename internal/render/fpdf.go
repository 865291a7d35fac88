package render

import (
	"bytes"
	"context"

	"cvedge/internal/errors"

	"github.com/go-pdf/fpdf"
)

// FPDFRenderer renders in process with go-pdf/fpdf and the Helvetica core font
type FPDFRenderer struct{}

// NewFPDFRenderer creates an fpdf renderer
func NewFPDFRenderer() *FPDFRenderer {
	return &FPDFRenderer{}
}

// Engine implements Renderer
func (r *FPDFRenderer) Engine() string {
	return "fpdf"
}

// Render implements Renderer
func (r *FPDFRenderer) Render(ctx context.Context, text string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "render cancelled", err)
	}

	lines := SplitLines(text)
	encoded, err := encodeLines(lines)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(Margin, Margin, Margin)
	pdf.SetAutoPageBreak(true, Margin)
	pdf.SetCreator("cvedge", false)
	pdf.SetTitle("Optimized Resume", false)
	pdf.AddPage()
	pdf.SetFont(FontFamily, "", FontSize)

	for _, line := range encoded {
		pdf.MultiCell(0, LineHeight, line, "", "L", false)
		pdf.Ln(ParagraphSpacer)
	}

	if pdf.Err() {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "failed to lay out document", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "failed to write document", err)
	}

	return &Document{
		Bytes:      buf.Bytes(),
		Paragraphs: lines,
		Pages:      pdf.PageCount(),
	}, nil
}
