// Package provider wraps the Gemini API for completion, search-grounded
// generation, and relevance scoring, with the rate-limit and transient-error
// retry taxonomy the research loop depends on for resilience.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/kokodak/ttd-dr/pkg/logger"
)

var scoreRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)

func floatPtr(f float32) *float32 { return &f }

const (
	defaultSystemPrompt = "You are a world-class research assistant."
	defaultMaxTokens    = 8192
)

// Client is the single entry point for every LLM call the pipeline makes.
type Client struct {
	genai       *genai.Client
	model       string
	maxRetries  int
	retryDelays []float64
}

// Config configures a Client. RetryDelays is the exponential backoff
// schedule used for transient errors; it is not consulted for rate-limit
// errors, which instead honor the server's reported retry-after duration.
type Config struct {
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelays []float64
}

// New creates a Client backed by the Gemini API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: creating genai client: %w", err)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delays := cfg.RetryDelays
	if len(delays) == 0 {
		delays = []float64{1.0, 2.0, 4.0}
	}
	return &Client{genai: gc, model: cfg.Model, maxRetries: maxRetries, retryDelays: delays}, nil
}

// Citation is a single grounding source returned by CompleteWithSearch.
type Citation struct {
	URL   string
	Title string
}

// CompletionOptions customizes a single Complete/CompleteWithSearch call.
type CompletionOptions struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int32
}

func (o CompletionOptions) withDefaults() CompletionOptions {
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
	return o
}

// Complete generates a plain text completion, retrying transient and
// rate-limit failures per the retry taxonomy in retry.go.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	opts = opts.withDefaults()
	var result string
	err := c.withRetry(ctx, "LLM completion", func() error {
		fullPrompt := opts.SystemPrompt + "\n\n" + prompt
		contents := []*genai.Content{
			genai.NewContentFromText(fullPrompt, "user"),
		}
		config := &genai.GenerateContentConfig{
			Temperature:     floatPtr(opts.Temperature),
			MaxOutputTokens: opts.MaxTokens,
		}
		resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return err
		}
		result = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// CompleteWithSearch generates a completion grounded by Google Search,
// returning the text and the grounding citations Gemini attached to it.
func (c *Client) CompleteWithSearch(ctx context.Context, prompt string, opts CompletionOptions) (string, []Citation, error) {
	opts = opts.withDefaults()
	var (
		text      string
		citations []Citation
	)
	err := c.withRetry(ctx, "Grounded generation", func() error {
		fullPrompt := opts.SystemPrompt + "\n\n" + prompt
		contents := []*genai.Content{
			genai.NewContentFromText(fullPrompt, "user"),
		}
		config := &genai.GenerateContentConfig{
			Tools:           []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			Temperature:     floatPtr(opts.Temperature),
			MaxOutputTokens: opts.MaxTokens,
		}
		resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return err
		}
		text = resp.Text()
		citations = nil
		if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
			for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
				if chunk.Web == nil {
					continue
				}
				citations = append(citations, Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
		logger.Debug("grounded generation complete")
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return text, citations, nil
}

// SearchResult is one source Search finds via Google Search grounding.
type SearchResult struct {
	URL     string
	Title   string
	Content string
}

const searchPromptTemplate = `Search for current, authoritative information on the following topic and summarize what you find in detail, preserving specific facts and figures.

Topic: %s`

// Search runs a Google Search-grounded completion and returns one
// SearchResult per grounding source, each carrying the full synthesized
// text as Content (Gemini's search tool does not expose per-source
// snippets). Results are capped at topK; topK<=0 means unbounded.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	text, citations, err := c.CompleteWithSearch(ctx, fmt.Sprintf(searchPromptTemplate, query), CompletionOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(citations))
	for _, cit := range citations {
		results = append(results, SearchResult{URL: cit.URL, Title: cit.Title, Content: text})
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// ScoredChunk is one candidate chunk after relevance scoring.
type ScoredChunk struct {
	ID    string
	Text  string
	URL   string
	Score float64
}

// RerankChunks scores each chunk's relevance to query on a 0-10 scale via a
// single-shot LLM call per chunk, normalizes to [0,1], and returns the
// highest-scoring topK chunks sorted descending. A chunk whose score cannot
// be parsed or whose scoring call fails gets score 0 rather than aborting
// the whole rerank.
func (c *Client) RerankChunks(ctx context.Context, query string, chunks []ScoredChunk, topK int) []ScoredChunk {
	scored := make([]ScoredChunk, len(chunks))
	copy(scored, chunks)

	for i, chunk := range scored {
		text := chunk.Text
		if len(text) > 1000 {
			text = text[:1000]
		}
		scoringPrompt := fmt.Sprintf(scoringPromptTemplate, query, text)
		resp, err := c.Complete(ctx, scoringPrompt, CompletionOptions{
			SystemPrompt: "You are a relevance scoring system. Provide only numeric scores.",
			Temperature:  0.0,
			MaxTokens:    10,
		})
		if err != nil {
			logger.Warn("rerank: scoring call failed, assigning score 0")
			scored[i].Score = 0
			continue
		}
		score, ok := parseScore(resp)
		if !ok {
			scored[i].Score = 0
			continue
		}
		scored[i].Score = score
	}

	sortScoredChunksDescending(scored)
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

const scoringPromptTemplate = `
Rate the relevance of the following text chunk to the query on a scale of 0-10.

Query: %s

Text Chunk:
%s

Provide ONLY a numeric score (0-10) where:
- 0 = Completely irrelevant
- 5 = Somewhat relevant
- 10 = Highly relevant and directly answers the query

Score:`

func parseScore(response string) (float64, bool) {
	trimmed := strings.TrimSpace(response)
	match := scoreRegexp.FindString(trimmed)
	if match == "" {
		return 0, false
	}
	var score float64
	if _, err := fmt.Sscanf(match, "%f", &score); err != nil {
		return 0, false
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score / 10.0, true
}

func sortScoredChunksDescending(chunks []ScoredChunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j].Score > chunks[j-1].Score; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
}
