package rag

import (
	"fmt"
	"strconv"
	"strings"

	"arcane-scribe/internal/models"
)

var snippetReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// BuildPrompt lays out the system instructions, the numbered context snippets,
// the citation instruction and finally the question.
func BuildPrompt(question string, hits []models.Hit) string {
	var sb strings.Builder
	sb.WriteString(models.SystemInstructions)
	sb.WriteString("\n\nContext:")
	for i, hit := range hits {
		fmt.Fprintf(&sb, "\n[%d] %s p.%s: %s", i+1, sourceName(hit), pageLabel(hit), snippet(hit.Document))
	}
	sb.WriteString("\n\n")
	sb.WriteString(models.CitationInstruction)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

func snippet(doc string) string {
	return strings.TrimSpace(snippetReplacer.Replace(doc))
}

func sourceName(hit models.Hit) string {
	if hit.Metadata.SourceFile == "" {
		return "unknown"
	}
	return hit.Metadata.SourceFile
}

func pageLabel(hit models.Hit) string {
	if hit.Metadata.PageNumber <= 0 {
		return "?"
	}
	return strconv.Itoa(hit.Metadata.PageNumber)
}
