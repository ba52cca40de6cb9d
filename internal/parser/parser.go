package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"arcane-scribe/internal/models"
)

// PDFExtractor extracts page text from PDF files on disk.
type PDFExtractor struct{}

func (PDFExtractor) Extract(path string) ([]models.Page, error) {
	return ExtractPages(path)
}

// ExtractPages returns the non-empty pages of the PDF at path, numbered from 1.
// Pages whose text is blank are skipped but keep the numbering of the document.
func ExtractPages(path string) (pages []models.Page, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	// the pdf package panics on some malformed documents
	page := 0
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &ExtractionError{Path: path, Page: page, Err: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, &ExtractionError{Path: path, Err: errors.New("document has no pages")}
	}

	sourceFile := filepath.Base(path)
	for page = 1; page <= numPages; page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return nil, &ExtractionError{Path: path, Page: page, Err: err}
		}
		pageText = SanitizeText(pageText)
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, models.Page{
			Text:       pageText,
			SourceFile: sourceFile,
			PageNumber: page,
			TotalPages: numPages,
		})
	}
	return pages, nil
}

// SanitizeText drops NUL bytes and non-printing control characters that some
// PDF producers leave in extracted text. Newlines and tabs are kept.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
