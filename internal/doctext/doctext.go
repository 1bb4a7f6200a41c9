// Package doctext turns uploaded statement documents into plain text for the
// line-oriented extraction tiers.
package doctext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

// ErrUnsupported is returned for documents that are neither PDF nor UTF-8 text.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor extracts text from PDFs and plain-text statements.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the document text. PDFs are read page by page with
// one line per text row; other files must already be UTF-8 text.
func (e *Extractor) ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	if isPDF(filename, data) {
		pages, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("ExtractText: reading %s: %w", filename, err)
		}
		log := logger.FromContext(ctx)
		log.Debug().Str("file", filename).Int("pages", len(pages)).Msg("Extracted PDF text")
		return strings.Join(pages, "\n"), nil
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("ExtractText: %s: %w", filename, ErrUnsupported)
	}
	return string(data), nil
}

func isPDF(filename string, data []byte) bool {
	return strings.EqualFold(path.Ext(filename), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

// extractPDF recovers from panics inside the PDF library, which happen on
// malformed cross-reference tables.
func extractPDF(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		if text := pageRows(page); text != "" {
			pages = append(pages, text)
			continue
		}
		if text, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(text) != "" {
			pages = append(pages, strings.TrimSpace(text))
		}
	}

	return pages, nil
}

// pageRows joins the words of each text row, keeping statement lines intact.
func pageRows(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}

	var lines []string
	for _, row := range rows {
		parts := make([]string, 0, len(row.Content))
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
