package vecindex

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Index backed by a map with brute-force cosine
// scans. The default for tests and for deployments that do not want a
// SQLite file on disk.
type Memory struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  map[string]memoryEntry
}

type memoryEntry struct {
	vector []float32
	meta   map[string]string
}

// NewMemory creates an empty in-memory index.
func NewMemory(embedder Embedder) *Memory {
	return &Memory{
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

func (m *Memory) Upsert(ctx context.Context, id, text string, meta map[string]string) error {
	vec, err := m.embedder.Embed(text)
	if err != nil {
		return err
	}
	var metaCopy map[string]string
	if meta != nil {
		metaCopy = make(map[string]string, len(meta))
		for k, v := range meta {
			metaCopy[k] = v
		}
	}

	m.mu.Lock()
	m.entries[id] = memoryEntry{vector: vec, meta: metaCopy}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vec, err := m.embedder.Embed(query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.entries))
	for id, entry := range m.entries {
		results = append(results, Result{
			ID:       id,
			Score:    cosineSimilarity(vec, entry.vector),
			Metadata: entry.meta,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
