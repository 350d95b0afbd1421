package vecindex

import "context"

// Result is one semantic search hit. Score is cosine similarity in [-1, 1],
// higher is closer.
type Result struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index stores note embeddings keyed by node id and answers nearest-neighbor
// queries. Implementations are safe for concurrent use.
type Index interface {
	// Upsert embeds text and stores it under id, replacing any previous
	// entry for the same id.
	Upsert(ctx context.Context, id, text string, meta map[string]string) error

	// Delete removes an entry. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// ListIDs returns every indexed id. Used to find entries orphaned by
	// graph deletions.
	ListIDs(ctx context.Context) ([]string, error)

	// Search embeds the query and returns up to limit results ordered by
	// descending similarity.
	Search(ctx context.Context, query string, limit int) ([]Result, error)

	// Clear drops every entry.
	Clear(ctx context.Context) error

	Close() error
}
