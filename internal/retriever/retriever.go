// Package retriever turns a search query into synthesized, cited research
// findings, either via Gemini's native search grounding or, in legacy mode,
// via an explicit chunk-then-rerank pipeline.
package retriever

import (
	"context"
	"fmt"

	"github.com/kokodak/ttd-dr/internal/chunk"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

// Result is a synthesized answer to a search query plus its citations.
type Result struct {
	Query     string
	Answer    string
	Citations []string
}

// Retriever issues research queries against a provider.Client.
type Retriever struct {
	client     *provider.Client
	legacyMode bool
	searchTopK int
	rerankTopK int
}

// Config configures a Retriever.
type Config struct {
	LegacyMode bool
	SearchTopK int
	RerankTopK int
}

// New creates a Retriever backed by client.
func New(client *provider.Client, cfg Config) *Retriever {
	return &Retriever{client: client, legacyMode: cfg.LegacyMode, searchTopK: cfg.SearchTopK, rerankTopK: cfg.RerankTopK}
}

// Retrieve answers searchQuery, using grounded generation unless legacy
// mode is configured. On failure it returns a Result carrying a descriptive
// error message instead of propagating the error, so the research loop can
// continue with a degraded answer rather than aborting.
func (r *Retriever) Retrieve(ctx context.Context, searchQuery string) Result {
	if r.legacyMode {
		return r.retrieveLegacy(ctx, searchQuery)
	}
	return r.retrieveGrounded(ctx, searchQuery)
}

func (r *Retriever) retrieveGrounded(ctx context.Context, searchQuery string) Result {
	contextPrompt := fmt.Sprintf(`You are researching to answer this query: %s

Provide a comprehensive, well-researched answer based on current web information.
Focus on specific facts, data, and details from authoritative sources.`, searchQuery)

	answer, citations, err := r.client.CompleteWithSearch(ctx, contextPrompt, provider.CompletionOptions{})
	if err != nil {
		logger.Error("grounded retrieval failed: " + err.Error())
		return Result{Query: searchQuery, Answer: fmt.Sprintf("Unable to retrieve web information for this query: %v", err)}
	}

	urls := make([]string, 0, len(citations))
	for _, c := range citations {
		urls = append(urls, c.URL)
	}
	return Result{Query: searchQuery, Answer: answer, Citations: urls}
}

// RetrieveFromChunks chunks caller-supplied documents, reranks the chunks
// with the provider's LLM-based scorer instead of a dedicated reranker
// model, then synthesizes an answer from the top-ranked chunks.
func (r *Retriever) RetrieveFromChunks(ctx context.Context, searchQuery string, docs []chunk.Document) Result {
	var chunks []chunk.Chunk
	for _, doc := range docs {
		chunks = append(chunks, chunk.ChunkDocument(doc, chunk.DefaultOptions())...)
	}
	if len(chunks) == 0 {
		return Result{Query: searchQuery, Answer: "No documents available for this query."}
	}

	candidates := make([]provider.ScoredChunk, len(chunks))
	for i, c := range chunks {
		candidates[i] = provider.ScoredChunk{ID: fmt.Sprintf("%d", c.ID), Text: c.Text, URL: c.URL}
	}

	topK := r.rerankTopK
	if topK <= 0 {
		topK = 20
	}
	ranked := r.client.RerankChunks(ctx, searchQuery, candidates, topK)

	var documents string
	var urls []string
	for _, c := range ranked {
		documents += c.Text + "\n\n"
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}

	synthesisPrompt := fmt.Sprintf(answerSynthesisPrompt, searchQuery, documents)
	answer, err := r.client.Complete(ctx, synthesisPrompt, provider.CompletionOptions{})
	if err != nil {
		logger.Error("legacy retrieval synthesis failed: " + err.Error())
		return Result{Query: searchQuery, Answer: fmt.Sprintf("Unable to synthesize retrieved documents: %v", err), Citations: urls}
	}
	return Result{Query: searchQuery, Answer: answer, Citations: urls}
}

// effectiveSearchTopK falls back to 50 (the documented default) when no
// SearchTopK was configured.
func effectiveSearchTopK(configured int) int {
	if configured <= 0 {
		return 50
	}
	return configured
}

// retrieveLegacy runs its own search step (in place of the FineWeb/vLLM
// combination the original used, which has no Go-ecosystem equivalent in
// the examples), chunks the results, and delegates into
// RetrieveFromChunks for reranking and synthesis.
func (r *Retriever) retrieveLegacy(ctx context.Context, searchQuery string) Result {
	results, err := r.client.Search(ctx, searchQuery, effectiveSearchTopK(r.searchTopK))
	if err != nil {
		logger.Error("legacy retrieval search failed: " + err.Error())
		return Result{Query: searchQuery, Answer: fmt.Sprintf("Unable to search for this query: %v", err)}
	}
	if len(results) == 0 {
		return Result{Query: searchQuery, Answer: "No documents available for this query."}
	}

	docs := make([]chunk.Document, len(results))
	for i, res := range results {
		docs[i] = chunk.Document{ID: fmt.Sprintf("search-%d", i), URL: res.URL, Text: res.Content}
	}
	return r.RetrieveFromChunks(ctx, searchQuery, docs)
}

const answerSynthesisPrompt = `
You have been given a search query and a list of retrieved documents.
Your task is to synthesize the information from these documents to provide a direct and comprehensive answer to the search query.
Focus only on the information present in the documents. Cite which document urls are relevant.

**Search Query:**
%s

**Retrieved Document Chunks:**
%s

Synthesized Answer:
`
