package render

import (
	"bytes"
	"context"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"cvedge/internal/errors"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 in inches for Page.printToPDF
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
	marginInches   = 1.0
)

var pageTemplate = template.Must(template.New("resume").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Optimized Resume</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 11pt; line-height: 14pt; margin: 0; }
  p { margin: 0 0 0.2in 0; white-space: pre-wrap; min-height: 14pt; }
</style>
</head>
<body>
{{range .}}<p>{{.}}</p>
{{end}}</body>
</html>
`))

// ChromeRenderer prints HTML paragraphs through headless Chrome
type ChromeRenderer struct {
	execPath string
	timeout  time.Duration
}

// NewChromeRenderer creates a renderer using the Chrome binary at execPath,
// or the one chromedp finds on PATH when execPath is empty
func NewChromeRenderer(execPath string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{execPath: execPath, timeout: timeout}
}

// Engine implements Renderer
func (r *ChromeRenderer) Engine() string {
	return "chromedp"
}

// buildHTML renders one escaped <p> per line
func buildHTML(lines []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, lines); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render implements Renderer
func (r *ChromeRenderer) Render(ctx context.Context, text string) (*Document, error) {
	lines := SplitLines(text)
	// Browser fonts cover more than cp1252; only the UTF-8 check applies here
	if _, err := encodeLines(lines); err != nil {
		return nil, err
	}

	html, err := buildHTML(lines)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "failed to build HTML", err)
	}

	tmpDir, err := os.MkdirTemp("", "cvedge-render-")
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "failed to create work directory", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	htmlPath := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(htmlPath, html, 0o600); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "failed to write HTML", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancel := context.WithTimeout(browserCtx, r.timeout)
	defer cancel()

	var pdfBuf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				WithMarginTop(marginInches).
				WithMarginBottom(marginInches).
				WithMarginLeft(marginInches).
				WithMarginRight(marginInches).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "chrome failed to print document", err)
	}

	pages, err := CountPages(pdfBuf)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "chrome produced an unreadable document", err)
	}

	return &Document{
		Bytes:      pdfBuf,
		Paragraphs: lines,
		Pages:      pages,
	}, nil
}
