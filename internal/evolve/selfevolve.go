// Package evolve implements the component-wise self-evolution algorithm:
// generate diverse variants of a response, critique and revise each one over
// several rounds, then merge the survivors into a single synthesized text.
package evolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/kokodak/ttd-dr/internal/provider"
)

const critiqueReviewerPrompt = "You are a critical and constructive reviewer."

const critiquePromptTemplate = `
Critique the following text based on the original request. Provide a concise critique and a fitness score from 1 to 10.
Then, rewrite the text to address the critique.

Original Request: %s

Text to Critique:
---
%s
---

Provide your response in the following format, and nothing else:
CRITIQUE: [Your critique here]
SCORE: [Your score here]
REVISED_TEXT: [Your improved version of the text]
`

const mergePromptTemplate = `
You are given several refined texts that all attempt to answer an original request.
Synthesize them into a single, comprehensive, and superior final text.

Original Request: %s

Refined Texts to Merge:
---
%s
---

Produce the final, merged text.
`

const revisedTextMarker = "REVISED_TEXT:"

// Options configures one Run of the self-evolution algorithm.
type Options struct {
	NumVariants    int
	EvolutionSteps int
}

func (o Options) withDefaults() Options {
	if o.NumVariants <= 0 {
		o.NumVariants = 1
	}
	if o.EvolutionSteps <= 0 {
		o.EvolutionSteps = 1
	}
	return o
}

// Run generates NumVariants initial completions of prompt, critiques and
// revises each one over EvolutionSteps rounds, then merges the final
// variants into one synthesized text. It returns the merged text and the
// evolved variants that fed it.
func Run(ctx context.Context, client *provider.Client, prompt, systemPrompt string, opts Options) (string, []string, error) {
	opts = opts.withDefaults()

	variants := make([]string, opts.NumVariants)
	for i := range variants {
		v, err := client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: systemPrompt})
		if err != nil {
			return "", nil, err
		}
		variants[i] = v
	}

	for step := 0; step < opts.EvolutionSteps; step++ {
		evolved := make([]string, len(variants))
		for i, variant := range variants {
			critiquePrompt := fmt.Sprintf(critiquePromptTemplate, prompt, variant)
			feedback, err := client.Complete(ctx, critiquePrompt, provider.CompletionOptions{SystemPrompt: critiqueReviewerPrompt})
			if err != nil {
				evolved[i] = variant
				continue
			}
			if revised, ok := extractRevisedText(feedback); ok {
				evolved[i] = revised
			} else {
				evolved[i] = variant
			}
		}
		variants = evolved
	}

	mergePrompt := fmt.Sprintf(mergePromptTemplate, prompt, strings.Join(variants, "---"))
	merged, err := client.Complete(ctx, mergePrompt, provider.CompletionOptions{SystemPrompt: systemPrompt})
	if err != nil {
		return "", variants, err
	}
	return merged, variants, nil
}

func extractRevisedText(feedback string) (string, bool) {
	idx := strings.Index(feedback, revisedTextMarker)
	if idx == -1 {
		return "", false
	}
	return strings.TrimSpace(feedback[idx+len(revisedTextMarker):]), true
}
