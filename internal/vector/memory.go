package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/soyeahso/docent/internal/domain"
)

// MemoryStore is an in-process Store backed by a map and brute-force
// cosine scoring. Good enough for tests and single-node setups with a
// small corpus.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vec []float32, topK int) ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   Record
		score float64
	}
	candidates := make([]scored, 0, len(s.records))
	for _, r := range s.records {
		candidates = append(candidates, scored{rec: r, score: cosine(vec, r.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	passages := make([]domain.Passage, 0, topK)
	for i := 0; i < topK; i++ {
		passages = append(passages, domain.Passage{
			Text:   candidates[i].rec.Text,
			Source: candidates[i].rec.Source,
			Rank:   i + 1,
		})
	}
	return passages, nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.DocumentID == documentID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
