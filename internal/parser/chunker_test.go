package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentences builds n characters of numbered sentences, so no window repeats
func sentences(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Rule %d covers case %d of the grapple table. ", i, i*7%13)
	}
	return b.String()[:n]
}

func TestChunkTextShortInputUnmodified(t *testing.T) {
	text := "  A short page with padding.\n"
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])

	exact := strings.Repeat("a", 1000)
	assert.Equal(t, []string{exact}, ChunkText(exact, 1000, 200))
}

func TestChunkTextHardCutWithoutTerminator(t *testing.T) {
	text := strings.Repeat("a", 1500)
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 1000), chunks[0])
	// second window starts at 800 and runs to the end
	assert.Equal(t, strings.Repeat("a", 700), chunks[1])
}

func TestChunkTextSnapsToSentenceBoundary(t *testing.T) {
	// terminator at index 949 is within the last 100 characters of the first window
	text := strings.Repeat("a", 949) + "." + strings.Repeat("b", 600)
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 949)+".", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 199)+"."))
	assert.True(t, strings.HasSuffix(chunks[1], "b"))
}

func TestChunkTextIgnoresTerminatorOutsideLookBack(t *testing.T) {
	// terminator at index 850 is more than 100 characters before the window end
	text := strings.Repeat("a", 850) + "!" + strings.Repeat("c", 700)
	chunks := ChunkText(text, 1000, 200)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
}

func TestChunkTextRecognizesAllTerminators(t *testing.T) {
	for _, term := range []string{".", "!", "?"} {
		text := strings.Repeat("a", 959) + term + strings.Repeat("z", 500)
		chunks := ChunkText(text, 1000, 200)
		require.NotEmpty(t, chunks, term)
		assert.True(t, strings.HasSuffix(chunks[0], term), "terminator %q", term)
	}
}

func TestChunkTextTrimsAndDropsEmpty(t *testing.T) {
	text := strings.Repeat(" ", 1200) + "tail"
	chunks := ChunkText(text, 1000, 200)
	for _, c := range chunks {
		assert.NotEmpty(t, c)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
	assert.Equal(t, "tail", chunks[len(chunks)-1])
}

func TestChunkTextCoverageAndOverlap(t *testing.T) {
	text := sentences(5300)
	chunks := ChunkText(text, 1000, 200)
	require.Greater(t, len(chunks), 1)

	// every chunk is a substring and consecutive chunks overlap or touch
	prevEnd := 0
	searchFrom := 0
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		idx := strings.Index(text[searchFrom:], c)
		require.GreaterOrEqual(t, idx, 0, "chunk %d not found in order", i)
		start := searchFrom + idx
		if i > 0 {
			assert.LessOrEqual(t, start, prevEnd, "gap before chunk %d", i)
		}
		prevEnd = start + len(c)
		searchFrom = start + 1
	}

	// every non-space character is covered
	covered := make([]bool, len(text))
	from := 0
	for _, c := range chunks {
		idx := strings.Index(text[from:], c) + from
		for j := idx; j < idx+len(c); j++ {
			covered[j] = true
		}
		from = idx + 1
	}
	for i, ok := range covered {
		if !ok {
			assert.Equal(t, byte(' '), text[i], "character %d not covered", i)
		}
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := sentences(4000)
	assert.Equal(t, ChunkText(text, 1000, 200), ChunkText(text, 1000, 200))
	assert.Equal(t, ChunkText(text, 500, 50), ChunkText(text, 500, 50))
}

func TestChunkTextCountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("é", 1200)
	chunks := ChunkText(text, 1000, 200)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 400, utf8.RuneCountInString(chunks[1]))
}

func TestChunkTextTerminatesWithLargeOverlap(t *testing.T) {
	// every window snaps back to a terminator near its start, so end-overlap never advances
	text := strings.Repeat("ab. ", 600)
	chunks := ChunkText(text, 150, 140)
	assert.NotEmpty(t, chunks)
}

func TestChunkTextPageScenario(t *testing.T) {
	page1 := sentences(1500)
	page2 := sentences(50)
	assert.Len(t, ChunkText(page1, 1000, 200), 2)
	assert.Len(t, ChunkText(page2, 1000, 200), 1)
}
