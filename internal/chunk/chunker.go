// Package chunk splits retrieved documents into overlapping, sentence-aligned
// chunks sized for reranking and synthesis prompts.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	multiSpacePattern   = regexp.MustCompile(` +`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	sentenceSplitPattern = regexp.MustCompile(`(?:\.|\?|!)\s+`)
	singleLetterPattern  = regexp.MustCompile(`^[A-Za-z]$`)
)

// abbreviations are tokens whose trailing period does not end a sentence.
// Go's RE2 has no lookbehind, so this is checked as a manual post-process
// against the word immediately preceding each candidate split point.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"approx": true, "inc": true, "ltd": true, "co": true, "no": true,
	"vol": true, "fig": true, "gen": true, "rev": true, "sgt": true,
}

// isAbbreviation reports whether token (taken without its trailing period)
// is a known abbreviation or a single letter, as in an initial like "A.".
func isAbbreviation(token string) bool {
	token = strings.TrimRight(token, ".")
	if token == "" {
		return false
	}
	if abbreviations[strings.ToLower(token)] {
		return true
	}
	return singleLetterPattern.MatchString(token)
}

// precedingToken returns the run of non-space characters immediately
// before idx.
func precedingToken(text string, idx int) string {
	j := idx
	for j > 0 && !unicode.IsSpace(rune(text[j-1])) {
		j--
	}
	return text[j:idx]
}

// Clean collapses runs of spaces and blank lines and trims each line.
func Clean(text string) string {
	text = multiSpacePattern.ReplaceAllString(text, " ")
	text = multiNewlinePattern.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// EstimateTokens approximates token count as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// SplitSentences splits text on sentence-ending punctuation followed by
// whitespace, skipping split points that follow a known abbreviation or a
// single-letter initial (e.g. "Dr." or "A.").
func SplitSentences(text string) []string {
	spans := splitSentenceSpans(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// sentenceSpan is one sentence together with its [start, end) character
// offsets within the text it was split from.
type sentenceSpan struct {
	Text  string
	Start int
	End   int
}

// splitSentenceSpans splits on sentence boundaries, keeping the terminal
// punctuation attached to the preceding sentence and suppressing splits
// after an abbreviation or a single-letter initial.
func splitSentenceSpans(text string) []sentenceSpan {
	locs := sentenceSplitPattern.FindAllStringIndex(text, -1)
	var raw []sentenceSpan
	if len(locs) == 0 {
		raw = []sentenceSpan{{Text: text, Start: 0, End: len(text)}}
	} else {
		start := 0
		for _, loc := range locs {
			punctIdx := loc[0]
			if text[punctIdx] == '.' && isAbbreviation(precedingToken(text, punctIdx)) {
				continue
			}
			end := punctIdx + 1
			raw = append(raw, sentenceSpan{Text: text[start:end], Start: start, End: end})
			start = loc[1]
		}
		if start < len(text) {
			raw = append(raw, sentenceSpan{Text: text[start:], Start: start, End: len(text)})
		}
	}

	out := make([]sentenceSpan, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed == "" {
			continue
		}
		lead := strings.Index(s.Text, trimmed)
		start := s.Start + lead
		out = append(out, sentenceSpan{Text: trimmed, Start: start, End: start + len(trimmed)})
	}
	return out
}

// Document is the source material handed to ChunkDocument.
type Document struct {
	ID   string
	URL  string
	Text string
}

// Chunk is one sentence-packed slice of a Document.
type Chunk struct {
	ID            int
	Text          string
	TokenCount    int
	CharRange     [2]int // [start, end) offsets into the cleaned document text
	SentenceCount int
	DocID         string
	URL           string
}

// Options configures ChunkDocument. An Options whose MaxTokens, Overlap and
// MinTokens are all zero is replaced by DefaultOptions (MaxTokens=500,
// Overlap=50, MinTokens=500, CleanText=true); otherwise every field is used
// as given.
type Options struct {
	MaxTokens int
	Overlap   int
	MinTokens int
	CleanText bool
}

// DefaultOptions returns the pipeline's standard chunking parameters.
func DefaultOptions() Options {
	return Options{MaxTokens: 500, Overlap: 50, MinTokens: 500, CleanText: true}
}

// ChunkDocument greedily packs sentences into chunks up to MaxTokens,
// carrying the trailing Overlap tokens of each chunk into the next one. A
// final chunk shorter than MinTokens is merged back into the previous chunk
// rather than emitted standalone.
func ChunkDocument(doc Document, opts Options) []Chunk {
	if opts.MaxTokens == 0 && opts.Overlap == 0 && opts.MinTokens == 0 {
		opts = DefaultOptions()
	}

	text := doc.Text
	if opts.CleanText {
		text = Clean(text)
	}

	spans := splitSentenceSpans(text)
	if len(spans) == 0 {
		return nil
	}

	var chunks []Chunk
	var current []sentenceSpan
	currentTokens := 0

	joinText := func(spans []sentenceSpan) string {
		texts := make([]string, len(spans))
		for i, s := range spans {
			texts[i] = s.Text
		}
		return strings.Join(texts, " ")
	}

	flush := func() {
		chunks = append(chunks, Chunk{
			ID:            len(chunks),
			Text:          joinText(current),
			TokenCount:    currentTokens,
			CharRange:     [2]int{current[0].Start, current[len(current)-1].End},
			SentenceCount: len(current),
			DocID:         doc.ID,
			URL:           doc.URL,
		})
	}

	for _, span := range spans {
		sentTokens := EstimateTokens(span.Text)

		if currentTokens+sentTokens > opts.MaxTokens && len(current) > 0 {
			flush()

			var overlapBuf []sentenceSpan
			overlapTokens := 0
			for i := len(current) - 1; i >= 0; i-- {
				st := EstimateTokens(current[i].Text)
				if overlapTokens+st > opts.Overlap {
					break
				}
				overlapBuf = append([]sentenceSpan{current[i]}, overlapBuf...)
				overlapTokens += st
			}
			current = overlapBuf
			currentTokens = overlapTokens
		}

		current = append(current, span)
		currentTokens += sentTokens
	}

	if len(current) > 0 && currentTokens >= opts.MinTokens {
		flush()
	} else if len(current) > 0 && len(chunks) > 0 {
		last := &chunks[len(chunks)-1]
		last.Text = last.Text + " " + joinText(current)
		last.TokenCount = EstimateTokens(last.Text)
		last.SentenceCount += len(current)
		last.CharRange[1] = current[len(current)-1].End
	}

	return chunks
}
