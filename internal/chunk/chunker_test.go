package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	in := "hello    world\n\n\n\nfoo  \n  bar"
	out := Clean(in)
	assert.NotContains(t, out, "    ")
	assert.NotContains(t, out, "\n\n\n")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestSplitSentences(t *testing.T) {
	text := "First sentence. Second sentence! Third one?"
	sentences := SplitSentences(text)
	require.Len(t, sentences, 3)
	assert.Equal(t, "First sentence.", sentences[0])
	assert.Equal(t, "Second sentence!", sentences[1])
	assert.Equal(t, "Third one?", sentences[2])
}

func TestSplitSentencesHandlesAbbreviationsAndInitials(t *testing.T) {
	text := "A. B. Dr. Smith went home. It rained! Then? Yes."
	sentences := SplitSentences(text)
	require.Len(t, sentences, 4)
	assert.Equal(t, "A. B. Dr. Smith went home.", sentences[0])
	assert.Equal(t, "It rained!", sentences[1])
	assert.Equal(t, "Then?", sentences[2])
	assert.Equal(t, "Yes.", sentences[3])
}

func TestChunkDocumentPopulatesCharRange(t *testing.T) {
	doc := Document{ID: "d1", Text: "One sentence here. Another one follows."}
	chunks := ChunkDocument(doc, Options{MaxTokens: 500, Overlap: 50, MinTokens: 0, CleanText: true})
	require.Len(t, chunks, 1)
	cleaned := Clean(doc.Text)
	assert.Equal(t, 0, chunks[0].CharRange[0])
	assert.Equal(t, len(cleaned), chunks[0].CharRange[1])
	assert.Equal(t, cleaned, chunks[0].Text)
}

func TestChunkDocumentEmpty(t *testing.T) {
	chunks := ChunkDocument(Document{Text: ""}, DefaultOptions())
	assert.Empty(t, chunks)
}

func TestChunkDocumentSinglePass(t *testing.T) {
	doc := Document{ID: "d1", URL: "https://example.com", Text: "One sentence here. Another one follows."}
	chunks := ChunkDocument(doc, Options{MaxTokens: 500, Overlap: 50, MinTokens: 0, CleanText: true})
	require.Len(t, chunks, 1)
	assert.Equal(t, "d1", chunks[0].DocID)
	assert.Equal(t, "https://example.com", chunks[0].URL)
	assert.Equal(t, 2, chunks[0].SentenceCount)
}

func TestChunkDocumentSplitsOnMaxTokens(t *testing.T) {
	sentence := strings.Repeat("word ", 40) + "."
	text := strings.Repeat(sentence+" ", 10)
	doc := Document{ID: "d2", Text: text}
	chunks := ChunkDocument(doc, Options{MaxTokens: 50, Overlap: 10, MinTokens: 0, CleanText: true})
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ID)
	}
}

func TestChunkDocumentMergesTrailingShortChunk(t *testing.T) {
	sentence := strings.Repeat("word ", 40) + "."
	text := strings.Repeat(sentence+" ", 6) + "short tail."
	doc := Document{ID: "d3", Text: text}
	chunks := ChunkDocument(doc, Options{MaxTokens: 50, Overlap: 0, MinTokens: 40, CleanText: true})
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Contains(t, last.Text, "short tail.")
}
