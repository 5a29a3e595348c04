package services

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// TextExtractor converts binary PDF content into plain text.
type TextExtractor interface {
	// ExtractText never fails: corrupt or unsupported input yields "".
	ExtractText(data []byte) string
}

// PDFExtractor extracts the text layer of a PDF page by page.
type PDFExtractor struct {
	Logger *zap.Logger
}

func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{Logger: logger}
}

// ExtractText returns the concatenated plain text of all pages. Parse
// failures are absorbed: an empty result means "no text", not an error,
// since documents without a text layer are still valid for some types.
func (e *PDFExtractor) ExtractText(data []byte) (text string) {
	if len(data) == 0 {
		return ""
	}
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Warn("PDF parser panicked, treating document as text-free", zap.Any("cause", r))
			text = ""
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		e.Logger.Warn("Could not parse PDF", zap.Error(err))
		return ""
	}

	var b strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.Logger.Debug("Skipping unreadable page", zap.Int("page", i), zap.Error(err))
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	result := strings.TrimSpace(b.String())
	e.Logger.Debug("PDF text extraction finished",
		zap.Int("pages", numPages),
		zap.Int("characters", len(result)),
	)
	return result
}
