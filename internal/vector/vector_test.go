package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearchRanksByCosine(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		{ID: "a", DocumentID: "doc1", Source: "a.md", Text: "about go", Vector: []float32{1, 0, 0}},
		{ID: "b", DocumentID: "doc1", Source: "b.md", Text: "about rust", Vector: []float32{0, 1, 0}},
		{ID: "c", DocumentID: "doc2", Source: "c.md", Text: "mostly go", Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	passages, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)

	assert.Equal(t, "about go", passages[0].Text)
	assert.Equal(t, "a.md", passages[0].Source)
	assert.Equal(t, 1, passages[0].Rank)
	assert.Equal(t, "mostly go", passages[1].Text)
	assert.Equal(t, 2, passages[1].Rank)
}

func TestMemoryStoreSearchTopKBound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}))

	passages, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, passages, 2)
}

func TestMemoryStoreSearchEmpty(t *testing.T) {
	s := NewMemoryStore()

	passages, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", Text: "old", Vector: []float32{1, 0}},
	}))
	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", Text: "new", Vector: []float32{1, 0}},
	}))

	passages, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "new", passages[0].Text)
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Record{
		{ID: "a", DocumentID: "doc1", Text: "keep me out", Vector: []float32{1, 0}},
		{ID: "b", DocumentID: "doc1", Text: "me too", Vector: []float32{0.9, 0.1}},
		{ID: "c", DocumentID: "doc2", Text: "survivor", Vector: []float32{0, 1}},
	}))

	require.NoError(t, s.DeleteByDocument(ctx, "doc1"))

	passages, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "survivor", passages[0].Text)
}

func TestMemoryStoreHealth(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Health(context.Background()))
	assert.NoError(t, s.Close())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosine(nil, nil))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
}
