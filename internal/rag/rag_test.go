package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/budget"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/vector"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// seededStore indexes the given source->text pairs with the same embedder
// the assembler will use, so retrieval actually ranks them.
func seededStore(t *testing.T, emb llm.Embedder, docs map[string]string) *vector.MemoryStore {
	t.Helper()
	store := vector.NewMemoryStore()
	for source, text := range docs {
		vecs, err := emb.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(context.Background(), []vector.Record{
			{ID: source, DocumentID: source, Source: source, Text: text, Vector: vecs[0]},
		}))
	}
	return store
}

func testAssembler(client llm.Client, store vector.Store, emb llm.Embedder) *Assembler {
	return NewAssembler(emb, store, client, budget.NewEnforcer(budget.HeuristicEstimator{}), 5, 3000, silentLog())
}

// --- classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     Category
	}{
		{"What programming languages do you know?", CategoryTechnical},
		{"Tell me about your tech stack", CategoryTechnical},
		{"How do you structure your code?", CategoryTechnical},
		{"What projects have you built?", CategoryProject},
		{"Tell me about your work experience", CategoryProject},
		{"What have you developed recently?", CategoryProject},
		{"Who are you?", CategoryGeneral},
		{"Where are you based?", CategoryGeneral},
		// Both keyword sets match; technical has priority.
		{"What framework did that project use?", CategoryTechnical},
		{"", CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.question), "question: %q", tt.question)
	}
}

// --- prompt selection ---

func TestPromptForTechnical(t *testing.T) {
	history := []domain.Message{{Role: domain.RoleUser, Content: "earlier turn"}}
	prompt := PromptFor(CategoryTechnical, "CTX", history, "What stack?")

	assert.Contains(t, prompt, "Technical question: What stack?")
	assert.Contains(t, prompt, "CTX")
	// Technical strategy ignores history even when present.
	assert.NotContains(t, prompt, "earlier turn")
}

func TestPromptForProject(t *testing.T) {
	prompt := PromptFor(CategoryProject, "CTX", nil, "What did you build?")
	assert.Contains(t, prompt, "Question about your projects: What did you build?")
	assert.Contains(t, prompt, "Technologies used")
}

func TestPromptForFollowUp(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi there"},
		{Role: domain.RoleAssistant, Content: "hello!"},
	}
	prompt := PromptFor(CategoryGeneral, "CTX", history, "and then?")

	assert.Contains(t, prompt, "Previous conversation:")
	assert.Contains(t, prompt, "User: hi there")
	assert.Contains(t, prompt, "Assistant: hello!")
	assert.Contains(t, prompt, "Current question: and then?")
}

func TestPromptForGeneralNoHistory(t *testing.T) {
	prompt := PromptFor(CategoryGeneral, "CTX", nil, "Who are you?")
	assert.Contains(t, prompt, "Question: Who are you?")
	assert.NotContains(t, prompt, "Previous conversation:")
}

// --- context assembly ---

func TestAssembleContextSections(t *testing.T) {
	a := testAssembler(&llm.MockClient{}, vector.NewMemoryStore(), llm.NewHashEmbedder(64))

	blob := a.assembleContext([]domain.Passage{
		{Text: "Go services since 2019.", Source: "resume.md", Rank: 1},
		{Text: "Built a chat gateway.", Source: "projects.md", Rank: 2},
	})

	assert.Contains(t, blob, "--- resume.md ---\nGo services since 2019.")
	assert.Contains(t, blob, "--- projects.md ---\nBuilt a chat gateway.")
}

func TestAssembleContextEmpty(t *testing.T) {
	a := testAssembler(&llm.MockClient{}, vector.NewMemoryStore(), llm.NewHashEmbedder(64))
	assert.Equal(t, emptyContext, a.assembleContext(nil))
}

func TestAssembleContextBounded(t *testing.T) {
	a := testAssembler(&llm.MockClient{}, vector.NewMemoryStore(), llm.NewHashEmbedder(64))
	a.contextTokens = 10

	blob := a.assembleContext([]domain.Passage{
		{Text: strings.Repeat("long passage ", 50), Source: "big.md", Rank: 1},
	})

	assert.True(t, strings.HasSuffix(blob, budget.TruncationMarker))
	assert.LessOrEqual(t, len(blob), 10*4+len(budget.TruncationMarker))
}

// --- Answer ---

func TestAnswerHappyPath(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	store := seededStore(t, emb, map[string]string{
		"resume.md":   "I have written Go services since 2019.",
		"projects.md": "I built a chat gateway with streaming responses.",
	})

	var gotReq llm.CompletionRequest
	mock := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			gotReq = req
			return &llm.CompletionResponse{
				Content: "I've been writing Go for years.",
				Model:   "mock-model",
				Usage:   llm.Usage{InputTokens: 40, OutputTokens: 8},
			}, nil
		},
	}

	a := testAssembler(mock, store, emb)
	result, err := a.Answer(context.Background(), "What languages do you use?", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, "I've been writing Go for years.", result.Answer)
	assert.Equal(t, 2, result.Retrieved)
	assert.ElementsMatch(t, []string{"resume.md", "projects.md"}, result.Sources)
	assert.Equal(t, CategoryTechnical, result.Category)
	assert.Equal(t, "mock-model", result.Model)
	assert.Equal(t, 8, result.Usage.OutputTokens)

	// The provider saw the persona and the retrieved context.
	assert.Equal(t, systemPrompt, gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, llm.RoleUser, gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "--- resume.md ---")
	assert.Contains(t, gotReq.Messages[0].Content, "chat gateway")
}

func TestAnswerKOverride(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	store := seededStore(t, emb, map[string]string{
		"a.md": "passage one about engineering",
		"b.md": "passage two about engineering",
		"c.md": "passage three about engineering",
	})

	a := testAssembler(&llm.MockClient{Response: "ok"}, store, emb)
	result, err := a.Answer(context.Background(), "Who are you?", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retrieved)
	assert.Len(t, result.Sources, 1)
}

func TestAnswerEmbeddingFailureDegrades(t *testing.T) {
	var gotPrompt string
	mock := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			gotPrompt = req.Messages[0].Content
			return &llm.CompletionResponse{Content: "best effort"}, nil
		},
	}

	a := testAssembler(mock, vector.NewMemoryStore(), failingEmbedder{})
	result, err := a.Answer(context.Background(), "Who are you?", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, "best effort", result.Answer)
	assert.Zero(t, result.Retrieved)
	assert.Empty(t, result.Sources)
	assert.Contains(t, gotPrompt, emptyContext)
}

func TestAnswerSearchFailureDegrades(t *testing.T) {
	a := testAssembler(&llm.MockClient{Response: "best effort"}, failingStore{}, llm.NewHashEmbedder(64))

	result, err := a.Answer(context.Background(), "Who are you?", nil, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Retrieved)
	assert.Empty(t, result.Sources)
}

func TestAnswerProviderFailurePropagates(t *testing.T) {
	mock := &llm.MockClient{
		Err: &llm.ProviderError{Provider: "mock", Message: "overloaded", Code: 529},
	}

	a := testAssembler(mock, vector.NewMemoryStore(), llm.NewHashEmbedder(64))
	_, err := a.Answer(context.Background(), "Who are you?", nil, 0)
	require.Error(t, err)

	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 529, pe.Code)
}

// --- AnswerStream ---

func TestAnswerStreamForwardsProviderEvents(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	store := seededStore(t, emb, map[string]string{
		"resume.md": "Go services since 2019.",
	})

	mock := &llm.MockClient{
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			assert.Contains(t, req.Messages[0].Content, "--- resume.md ---")
			ch := make(chan llm.StreamEvent, 3)
			ch <- llm.StreamEvent{Type: "delta", Content: "Go "}
			ch <- llm.StreamEvent{Type: "delta", Content: "mostly."}
			ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{Content: "Go mostly."}}
			close(ch)
			return ch, nil
		},
	}

	a := testAssembler(mock, store, emb)
	stream, err := a.AnswerStream(context.Background(), "What languages?", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"resume.md"}, stream.Sources)
	assert.Equal(t, 1, stream.Retrieved)

	var deltas []string
	var done bool
	for evt := range stream.Events {
		switch evt.Type {
		case "delta":
			deltas = append(deltas, evt.Content)
		case "done":
			done = true
		}
	}
	assert.Equal(t, []string{"Go ", "mostly."}, deltas)
	assert.True(t, done)
}

func TestAnswerStreamOpenFailure(t *testing.T) {
	mock := &llm.MockClient{
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return nil, errors.New("connection refused")
		},
	}

	a := testAssembler(mock, vector.NewMemoryStore(), llm.NewHashEmbedder(64))
	_, err := a.AnswerStream(context.Background(), "Who are you?", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open answer stream")
}

// --- fakes ---

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingEmbedder) Dimensions() int { return 0 }

type failingStore struct{}

func (failingStore) Upsert(context.Context, []vector.Record) error { return errors.New("down") }

func (failingStore) Search(context.Context, []float32, int) ([]domain.Passage, error) {
	return nil, errors.New("vector store down")
}

func (failingStore) DeleteByDocument(context.Context, string) error { return errors.New("down") }

func (failingStore) Health(context.Context) error { return errors.New("down") }

func (failingStore) Close() error { return nil }
