package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"arcane-scribe/internal/helper"
	"arcane-scribe/internal/ingest"
	"arcane-scribe/internal/models"
	"arcane-scribe/internal/rag"
)

func printIndexResult(w io.Writer, dbDir string, res *ingest.Result, stats models.CollectionStats) error {
	fmt.Fprintf(w, "Indexed %d chunks from %d files into %s\n", res.TotalChunks, len(res.Files)-len(res.Failures), dbDir)
	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "Failed files (%d):\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %s: %v\n", filepath.Base(f.Path), f.Err)
		}
	}
	fmt.Fprintln(w, "Collection stats:")
	return helper.PrettyPrint(w, stats)
}

func printAnswer(w io.Writer, answer *rag.Answer) error {
	if _, err := fmt.Fprintf(w, "%s\n\nSources:\n", answer.Text); err != nil {
		return err
	}
	for _, line := range answer.SourceLines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
