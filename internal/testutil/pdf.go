package testutil

import (
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
)

// WritePDF renders one page per entry; an empty entry produces a blank page.
func WritePDF(t testing.TB, path string, pages []string) {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text != "" {
			doc.Cell(40, 10, text)
		}
	}
	require.NoError(t, doc.OutputFileAndClose(path))
}
