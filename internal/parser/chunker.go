package parser

import (
	"strings"

	"arcane-scribe/internal/models"
)

const (
	DefaultChunkSize    = 1000 // characters
	DefaultChunkOverlap = 200  // characters

	// how far back from the window end to look for a sentence terminator
	sentenceLookBack = 100
)

// ChunkText splits text into overlapping windows of at most chunkSize characters,
// preferring to end each window right after a sentence terminator found in its last
// 100 characters. Windows are trimmed and empty ones dropped. Text that already fits
// in one window is returned unmodified.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	textLen := len(runes)
	if textLen <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < textLen {
		end := start + chunkSize

		if end < textLen {
			searchStart := max(start+chunkSize-sentenceLookBack, start)
			for i := end - 1; i >= searchStart; i-- {
				if strings.ContainsRune(models.SentenceTerminators, runes[i]) {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:min(end, textLen)]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			// overlap too large for the snapped window, continue without overlap
			next = end
		}
		start = next
	}

	return chunks
}
