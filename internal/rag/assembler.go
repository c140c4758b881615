// Package rag turns a question into an answer grounded in retrieved
// document passages. The assembler classifies the question, pulls top-k
// supporting passages from the vector store, renders a prompt strategy for
// the category, and drives the generation provider once (Answer) or
// incrementally (AnswerStream).
//
// Retrieval failures degrade to an empty-context answer; only generation
// provider failures surface as errors to the caller.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/docent/internal/budget"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/vector"
)

// emptyContext stands in for the context blob when retrieval produced
// nothing, so every prompt strategy still receives a context section.
const emptyContext = "No relevant information found in the indexed documents."

// Result is the outcome of answering one question.
type Result struct {
	Answer    string
	Sources   []string
	Retrieved int
	Category  Category
	Model     string
	Usage     llm.Usage
}

// Stream is an in-flight streaming answer. Events come straight from the
// provider; retrieval and prompt selection already happened.
type Stream struct {
	Events    <-chan llm.StreamEvent
	Sources   []string
	Retrieved int
	Category  Category
}

// Assembler wires the embedder, vector store and generation provider into
// the retrieval-augmented answer path.
type Assembler struct {
	embedder      llm.Embedder
	store         vector.Store
	client        llm.Client
	enforcer      *budget.Enforcer
	topK          int
	contextTokens int
	log           *logging.Logger
}

func NewAssembler(
	embedder llm.Embedder,
	store vector.Store,
	client llm.Client,
	enforcer *budget.Enforcer,
	topK int,
	contextTokens int,
	log *logging.Logger,
) *Assembler {
	return &Assembler{
		embedder:      embedder,
		store:         store,
		client:        client,
		enforcer:      enforcer,
		topK:          topK,
		contextTokens: contextTokens,
		log:           log.Sub("rag"),
	}
}

// Answer runs the full retrieval-augmented path for one question. History
// should already be budget-fitted by the caller; k <= 0 uses the configured
// top-k.
func (a *Assembler) Answer(ctx context.Context, question string, history []domain.Message, k int) (*Result, error) {
	cat := Classify(question)

	passages, sources := a.retrieveOrEmpty(ctx, question, k)
	prompt := PromptFor(cat, a.assembleContext(passages), history, question)

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	a.log.Debug().
		Str("category", string(cat)).
		Int("retrieved", len(passages)).
		Int("outputTokens", resp.Usage.OutputTokens).
		Msg("answer assembled")

	return &Result{
		Answer:    resp.Content,
		Sources:   sources,
		Retrieved: len(passages),
		Category:  cat,
		Model:     resp.Model,
		Usage:     resp.Usage,
	}, nil
}

// AnswerStream is the streaming variant of Answer. An error here means the
// stream never opened; errors after that arrive as events on the channel.
func (a *Assembler) AnswerStream(ctx context.Context, question string, history []domain.Message, k int) (*Stream, error) {
	cat := Classify(question)

	passages, sources := a.retrieveOrEmpty(ctx, question, k)
	prompt := PromptFor(cat, a.assembleContext(passages), history, question)

	ch, err := a.client.Stream(ctx, llm.CompletionRequest{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open answer stream: %w", err)
	}

	return &Stream{
		Events:    ch,
		Sources:   sources,
		Retrieved: len(passages),
		Category:  cat,
	}, nil
}

// retrieveOrEmpty embeds the question and pulls the top-k passages,
// degrading to no context on any retrieval failure.
func (a *Assembler) retrieveOrEmpty(ctx context.Context, question string, k int) ([]domain.Passage, []string) {
	if k <= 0 {
		k = a.topK
	}

	vecs, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		a.log.Warn().Err(err).Msg("embedding failed, answering without context")
		return nil, nil
	}

	passages, err := a.store.Search(ctx, vecs[0], k)
	if err != nil {
		a.log.Warn().Err(err).Msg("vector search failed, answering without context")
		return nil, nil
	}

	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, p.Source)
	}
	return passages, sources
}

// assembleContext renders passages into one blob, one tagged section per
// passage, bounded by the configured context budget.
func (a *Assembler) assembleContext(passages []domain.Passage) string {
	if len(passages) == 0 {
		return emptyContext
	}

	var b strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p.Source, strings.TrimSpace(p.Text))
	}
	return a.enforcer.TruncateOutput(strings.TrimSpace(b.String()), a.contextTokens)
}
