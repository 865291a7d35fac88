package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// CountPages returns the number of pages in a PDF
func CountPages(pdfBytes []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	return r.NumPage(), nil
}

// ExtractLines reads the text rows of a PDF in reading order, top to bottom and
// page by page. Blank paragraphs carry no text and are not returned.
func ExtractLines(pdfBytes []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var lines []string
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to read text on page %d: %w", pageIndex, err)
		}

		// PDF y grows upwards
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

		for _, row := range rows {
			words := row.Content
			sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })

			var b strings.Builder
			for _, word := range words {
				b.WriteString(word.S)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
	}

	return lines, nil
}
