package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/models"
)

// ExtractionResult contains the combined text of a document and how each
// page was obtained.
type ExtractionResult struct {
	Text        string
	Method      string // dominant method over the whole document
	PageCount   int
	OCRPages    int
	PageMethods map[int]string // page index -> native/ocr/fallback
}

// Extractor produces full document text, combining the embedded text layer
// with OCR for pages whose layer is too weak to trust.
type Extractor struct {
	scheduler     *OCRScheduler
	textThreshold int
	renderDPI     int
}

func NewExtractor(scheduler *OCRScheduler, textThreshold int) *Extractor {
	return &Extractor{
		scheduler:     scheduler,
		textThreshold: textThreshold,
		renderDPI:     150,
	}
}

// Extract dispatches on mime type. An empty result is not an error here; the
// pipeline decides what an empty extraction means for the document.
func (e *Extractor) Extract(ctx context.Context, fileBytes []byte, mimeType string) (*ExtractionResult, error) {
	switch {
	case mimeType == "application/pdf":
		return e.extractPDF(ctx, fileBytes)
	case strings.HasPrefix(mimeType, "image/"):
		return e.extractImage(ctx, fileBytes, mimeType)
	case mimeType == "text/plain" || mimeType == "text/markdown":
		text := sanitizeText(string(fileBytes))
		return &ExtractionResult{
			Text:        text,
			Method:      models.MethodText,
			PageCount:   1,
			PageMethods: map[int]string{0: models.MethodText},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mime type: %s", mimeType)
	}
}

// extractImage treats the whole file as a single page of OCR input.
func (e *Extractor) extractImage(ctx context.Context, fileBytes []byte, mimeType string) (*ExtractionResult, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "jpg" {
		format = "jpeg"
	}

	pages := []pageInput{{
		index: 0,
		text:  "",
		render: func(ctx context.Context) ([]byte, error) {
			return fileBytes, nil
		},
		format: format,
	}}

	result := e.assemble(ctx, pages)
	return result, nil
}

// extractPDF walks pages in order, keeps each page's text layer when it is
// strong enough, and queues weak pages for OCR against a rendered image of
// the page.
func (e *Extractor) extractPDF(ctx context.Context, fileBytes []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	// pdftoppm needs a file on disk. One temp copy serves every page render
	// for the duration of the extraction.
	tmpPath, cleanup, err := writeTempPDF(fileBytes)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	numPages := reader.NumPage()
	pages := make([]pageInput, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			extracted, err := page.GetPlainText(nil)
			if err != nil {
				logger.Warn("Page text layer unreadable", "page", i, "error", err)
			} else {
				text = sanitizeText(extracted)
			}
		}

		pageNum := i
		pages = append(pages, pageInput{
			index: i - 1,
			text:  text,
			render: func(ctx context.Context) ([]byte, error) {
				return renderPDFPage(ctx, tmpPath, pageNum, e.renderDPI)
			},
		})
	}

	return e.assemble(ctx, pages), nil
}

// pageInput is one page before the OCR decision: its text layer (possibly
// empty) and a way to render it if OCR is needed.
type pageInput struct {
	index  int
	text   string
	render func(ctx context.Context) ([]byte, error)
	format string
}

// assemble applies the OCR threshold, runs the scheduler once over the weak
// pages, and interleaves OCR output back by page index. The result is always
// in page order regardless of OCR completion order.
func (e *Extractor) assemble(ctx context.Context, pages []pageInput) *ExtractionResult {
	texts := make([]string, len(pages))
	methods := make(map[int]string, len(pages))

	var queue []PageTask
	for _, p := range pages {
		if len(strings.TrimSpace(p.text)) >= e.textThreshold {
			texts[p.index] = p.text
			methods[p.index] = models.MethodNative
			continue
		}
		queue = append(queue, PageTask{
			PageIndex: p.index,
			Render:    p.render,
			Format:    p.format,
			Fallback:  p.text,
		})
	}

	ocrPages := 0
	if len(queue) > 0 {
		fallbacks := make(map[int]string, len(queue))
		for _, task := range queue {
			fallbacks[task.PageIndex] = task.Fallback
		}

		results := e.scheduler.RunQueue(ctx, queue)
		for idx, text := range results {
			texts[idx] = sanitizeText(text)
			if text != "" && text != fallbacks[idx] {
				methods[idx] = models.MethodOCR
				ocrPages++
			} else {
				methods[idx] = models.MethodFallback
			}
		}
	}

	var parts []string
	for _, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	return &ExtractionResult{
		Text:        strings.Join(parts, "\n\n"),
		Method:      dominantMethod(methods, ocrPages),
		PageCount:   len(pages),
		OCRPages:    ocrPages,
		PageMethods: methods,
	}
}

func dominantMethod(methods map[int]string, ocrPages int) string {
	if len(methods) == 0 {
		return models.MethodNative
	}
	if ocrPages > len(methods)/2 {
		return models.MethodOCR
	}
	return models.MethodNative
}

func writeTempPDF(fileBytes []byte) (string, func(), error) {
	path := filepath.Join(os.TempDir(), "ingest-"+uuid.New().String()+".pdf")
	if err := os.WriteFile(path, fileBytes, 0o600); err != nil {
		return "", nil, fmt.Errorf("write temp PDF: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}

// renderPDFPage rasterizes one page to PNG via poppler's pdftoppm.
func renderPDFPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not available: %w", err)
	}

	outPrefix := filepath.Join(os.TempDir(), "page-"+uuid.New().String())
	outFile := outPrefix + ".png"
	defer os.Remove(outFile)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		outPrefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %v, stderr: %s", err, stderr.String())
	}

	return os.ReadFile(outFile)
}

// sanitizeText strips control characters that break downstream storage and
// embedding calls, keeping tabs and newlines.
func sanitizeText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 32 || r == '�' {
			return -1
		}
		return r
	}, text)
}
