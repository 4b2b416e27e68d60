// Package pdftext turns statement PDFs into plain text.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/ledongthuc/pdf"
)

// MinTextLength is the shortest trimmed text accepted as a readable statement.
// Scanned or image-only PDFs usually yield little or no text.
const MinTextLength = 50

// Extractor extracts text from PDF documents.
type Extractor struct{}

// NewExtractor creates a new PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the plain text of every page in data. Any failure to read the
// document, and documents with too little text, are reported as domain.ErrUnreadableDocument.
func (e *Extractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	log := logger.FromContext(ctx)

	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", domain.ErrUnreadableDocument)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("PDF parser panicked")
			text = ""
			err = fmt.Errorf("%w: invalid PDF structure", domain.ErrUnreadableDocument)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Skipping unreadable PDF page")
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}

	text = b.String()
	if len(strings.TrimSpace(text)) < MinTextLength {
		return "", fmt.Errorf("%w: no extractable text, the PDF may be scanned or image-based", domain.ErrUnreadableDocument)
	}

	log.Debug().Int("pages", pages).Int("chars", len(text)).Msg("Extracted PDF text")
	return text, nil
}
