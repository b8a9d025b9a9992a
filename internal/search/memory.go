package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index ranking by cosine similarity.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

// Upsert validates every document before storing any of them.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []Document) error {
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("MemoryIndex.Upsert: document %d has no id", i)
		}
		if len(d.Vector) == 0 {
			return fmt.Errorf("MemoryIndex.Upsert: document %s has no vector", d.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		d.Vector = append([]float32(nil), d.Vector...)
		m.docs[d.ID] = d
	}
	return nil
}

// Delete removes documents by id.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

// Search ranks all documents by cosine similarity to vector.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.docs))
	for _, d := range m.docs {
		if len(d.Vector) != len(vector) {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: cosine(vector, d.Vector)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Get returns the document stored under id.
func (m *MemoryIndex) Get(id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok
}

func cosine(a, b []float32) float64 {
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
