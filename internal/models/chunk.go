package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// metadata keys as stored in the vector database
const (
	MetaSourceFile  = "source_file"
	MetaPageNumber  = "page_number"
	MetaTotalPages  = "total_pages"
	MetaChunkIndex  = "chunk_index"
	MetaTextPreview = "text_preview"
)

const previewLength = 100

// Page is the extracted plain text of a single PDF page
type Page struct {
	Text       string
	SourceFile string
	PageNumber int
	TotalPages int
}

// ChunkMetadata is stored alongside every chunk in the collection
type ChunkMetadata struct {
	SourceFile  string `json:"source_file"`
	PageNumber  int    `json:"page_number"`
	TotalPages  int    `json:"total_pages"`
	ChunkIndex  int    `json:"chunk_index"`
	TextPreview string `json:"text_preview"`
}

// Chunk represents a piece of page text ready to be stored
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
}

// Hit is a chunk returned from a similarity query
type Hit struct {
	Document string        `json:"document"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float32       `json:"distance"`
}

// CollectionStats summarizes the stored collection
type CollectionStats struct {
	TotalChunks    int            `json:"total_chunks"`
	CollectionName string         `json:"collection_name"`
	SampleMetadata *ChunkMetadata `json:"sample_metadata"`
}

// ChunkID builds the deterministic id `{file_stem}_p{page}_c{index}`
func ChunkID(sourceFile string, pageNumber, chunkIndex int) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_p%d_c%d", stem, pageNumber, chunkIndex)
}

// Preview returns the first 100 characters of text, with an ellipsis if truncated.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

// NewChunkMetadata builds the metadata of the chunkIndex-th chunk of a page.
func NewChunkMetadata(page Page, chunkIndex int, text string) ChunkMetadata {
	return ChunkMetadata{
		SourceFile:  page.SourceFile,
		PageNumber:  page.PageNumber,
		TotalPages:  page.TotalPages,
		ChunkIndex:  chunkIndex,
		TextPreview: Preview(text),
	}
}

// ToMap converts metadata to the string map used by chromem
func (m ChunkMetadata) ToMap() map[string]string {
	return map[string]string{
		MetaSourceFile:  m.SourceFile,
		MetaPageNumber:  strconv.Itoa(m.PageNumber),
		MetaTotalPages:  strconv.Itoa(m.TotalPages),
		MetaChunkIndex:  strconv.Itoa(m.ChunkIndex),
		MetaTextPreview: m.TextPreview,
	}
}

// ParseChunkMetadata is the inverse of ToMap. Missing or malformed numbers decode as 0.
func ParseChunkMetadata(meta map[string]string) ChunkMetadata {
	atoi := func(key string) int {
		n, err := strconv.Atoi(meta[key])
		if err != nil {
			return 0
		}
		return n
	}
	return ChunkMetadata{
		SourceFile:  meta[MetaSourceFile],
		PageNumber:  atoi(MetaPageNumber),
		TotalPages:  atoi(MetaTotalPages),
		ChunkIndex:  atoi(MetaChunkIndex),
		TextPreview: meta[MetaTextPreview],
	}
}
