package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/model"
)

// MemoryIndex is an in-process VectorIndex using brute-force cosine similarity.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[uuid.UUID]*model.Chunk
	order     []uuid.UUID
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		chunks:    map[uuid.UUID]*model.Chunk{},
	}
}

func (m *MemoryIndex) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := map[uuid.UUID]bool{}
	for _, id := range ids {
		if _, ok := m.chunks[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

// UpsertEmbeddings stores copies of the chunks. A chunk with a known id
// replaces the stored one.
func (m *MemoryIndex) UpsertEmbeddings(ctx context.Context, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != m.dimension {
			return fmt.Errorf("chunk %s has %d dimensions, expected %d", c.ID, len(c.Embedding), m.dimension)
		}
	}

	for _, c := range chunks {
		stored := *c
		if _, ok := m.chunks[c.ID]; !ok {
			m.order = append(m.order, c.ID)
		}
		m.chunks[c.ID] = &stored
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, filter model.SearchFilter, topK int, threshold float64) ([]*model.Chunk, error) {
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("query has %d dimensions, expected %d", len(embedding), m.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*model.Chunk
	for _, id := range m.order {
		c := m.chunks[id]
		if !filter.Matches(c) {
			continue
		}
		result := *c
		result.Similarity = cosine(embedding, c.Embedding)
		results = append(results, &result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}

	kept := results[:0]
	for _, r := range results {
		if r.Similarity >= threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (m *MemoryIndex) Info(ctx context.Context) (model.IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return model.IndexInfo{
		Name:       "memory",
		Dimension:  m.dimension,
		Count:      len(m.chunks),
		Embeddings: len(m.chunks),
		IndexType:  "flat",
	}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
