package storage

import (
	"context"
	"fmt"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// PDFInspector opens captured PDFs with mupdf to confirm they are readable.
// Non-PDF artifacts are reported with zero pages and no error.
type PDFInspector struct {
	logger *zap.Logger
}

// NewPDFInspector creates a new PDFInspector
func NewPDFInspector(logger *zap.Logger) *PDFInspector {
	return &PDFInspector{logger: logger}
}

// Inspect implements port.DocumentInspector
func (i *PDFInspector) Inspect(ctx context.Context, doc *entity.CapturedDocument) (int, error) {
	if doc == nil || len(doc.Content) == 0 {
		return 0, fmt.Errorf("empty document")
	}
	if doc.Extension != ".pdf" {
		return 0, nil
	}

	pdf, err := fitz.NewFromMemory(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer pdf.Close()

	pages := pdf.NumPage()
	i.logger.Debug("Inspected captured PDF",
		zap.Int("pages", pages),
		zap.Int("size", len(doc.Content)),
		zap.String("source", doc.Source))

	if pages == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return pages, nil
}

var _ port.DocumentInspector = (*PDFInspector)(nil)
