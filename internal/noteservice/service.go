// Package noteservice coordinates note CRUD across the vault, the knowledge
// graph, and the vector index. Every write runs a sync so the graph is never
// behind disk.
package noteservice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/hashtrack"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/vecindex"
)

// LinkRef points at a note on the other end of an edge.
type LinkRef struct {
	NodeID   string             `json:"node_id"`
	Path     string             `json:"path"`
	Title    string             `json:"title"`
	Relation graph.RelationType `json:"relation_type"`
}

// NoteDetail is the full representation of a note, content plus its graph
// neighborhood.
type NoteDetail struct {
	Path        string          `json:"path"`
	NodeID      string          `json:"node_id,omitempty"`
	Title       string          `json:"title"`
	Category    models.Category `json:"category"`
	Content     string          `json:"content"`
	Checksum    string          `json:"checksum"`
	Tags        []string        `json:"tags"`
	Frontmatter map[string]any  `json:"frontmatter,omitempty"`
	Backlinks   []LinkRef       `json:"backlinks"`
	Outgoing    []LinkRef       `json:"outgoing"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string          `json:"path"`
	NodeID    string          `json:"node_id"`
	Title     string          `json:"title"`
	Category  models.Category `json:"category"`
	Tags      []string        `json:"tags"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SearchResult is one semantic search hit enriched with note identity.
type SearchResult struct {
	NodeID string  `json:"node_id"`
	Path   string  `json:"path"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

// Service coordinates vault, graph, tracker, and vector index operations.
type Service struct {
	store        storage.Provider
	graph        *graph.Graph
	tracker      *hashtrack.Tracker
	engine       *syncer.Engine
	vec          vecindex.Index
	snapshotPath string
	events       func(kind, path string)
}

// SetEvents registers a callback for note change notifications. kind is one
// of "created", "updated", "deleted".
func (s *Service) SetEvents(cb func(kind, path string)) {
	s.events = cb
}

func (s *Service) emit(kind, path string) {
	if s.events != nil {
		s.events(kind, path)
	}
}

// NewService creates a note service. snapshotPath is where the graph is
// persisted after out-of-band mutations such as manual relations.
func NewService(store storage.Provider, g *graph.Graph, tracker *hashtrack.Tracker, engine *syncer.Engine, vec vecindex.Index, snapshotPath string) *Service {
	return &Service{store: store, graph: g, tracker: tracker, engine: engine, vec: vec, snapshotPath: snapshotPath}
}

// Sync runs a reconciliation pass.
func (s *Service) Sync(ctx context.Context, forceRebuild bool) (*syncer.Report, error) {
	return s.engine.Sync(ctx, forceRebuild)
}

// GetNote reads a note from the vault and enriches it with its graph
// neighborhood.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note and syncs it into the graph.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, fmt.Errorf("noteservice: %s: %w", path, apperr.ErrAlreadyExists)
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := s.engine.Sync(ctx, false); err != nil {
		return nil, err
	}
	s.emit("created", path)
	return s.buildNoteDetail(path, content)
}

// UpdateNote writes updated content with optimistic concurrency: a non-empty
// ifMatch must equal the checksum of the current on-disk content.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, fmt.Errorf("noteservice: %s changed since read: %w", path, apperr.ErrConflict)
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := s.engine.Sync(ctx, false); err != nil {
		return nil, err
	}
	s.emit("updated", path)
	return s.buildNoteDetail(path, content)
}

// DeleteNote removes a note from the vault and syncs the graph.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	if _, err := s.engine.Sync(ctx, false); err != nil {
		return err
	}
	s.emit("deleted", path)
	return nil
}

// ListNotes returns notes from the graph with optional tag and category
// filters, paginated and sorted by path.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag string, category models.Category) ([]NoteListItem, int, error) {
	var nodes []graph.Node
	switch {
	case tag != "":
		nodes = s.graph.FindByTag(tag)
	case category != "":
		if !category.Valid() {
			return nil, 0, fmt.Errorf("noteservice: unknown category %q: %w", category, apperr.ErrNotFound)
		}
		nodes = s.graph.FindByCategory(category)
	default:
		nodes = s.graph.Nodes()
	}
	if tag != "" && category != "" {
		filtered := nodes[:0]
		for _, n := range nodes {
			if n.Category == category {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].FilePath < nodes[j].FilePath })
	total := len(nodes)

	if offset > len(nodes) {
		offset = len(nodes)
	}
	nodes = nodes[offset:]
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}

	items := make([]NoteListItem, len(nodes))
	for i, n := range nodes {
		items[i] = NoteListItem{
			Path:      n.FilePath,
			NodeID:    n.ID,
			Title:     n.Title,
			Category:  n.Category,
			Tags:      nonNilSlice(n.Tags),
			UpdatedAt: n.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search runs a semantic query against the vector index and maps hits back
// to graph nodes. Hits whose node vanished mid-flight are dropped.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	hits, err := s.vec.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		n, ok := s.graph.GetNode(h.ID)
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			NodeID: n.ID,
			Path:   n.FilePath,
			Title:  n.Title,
			Score:  h.Score,
		})
	}
	return results, nil
}

// Backlinks returns the notes linking to the note at path.
func (s *Service) Backlinks(_ context.Context, path string) ([]LinkRef, error) {
	n, ok := s.graph.FindByPath(path)
	if !ok {
		return nil, fmt.Errorf("noteservice: %s: %w", path, apperr.ErrNotFound)
	}
	return s.linkRefs(s.graph.Backlinks(n.ID), false), nil
}

// Outgoing returns the notes the note at path links to.
func (s *Service) Outgoing(_ context.Context, path string) ([]LinkRef, error) {
	n, ok := s.graph.FindByPath(path)
	if !ok {
		return nil, fmt.Errorf("noteservice: %s: %w", path, apperr.ErrNotFound)
	}
	return s.linkRefs(s.graph.Outgoing(n.ID), true), nil
}

// GenerateLink returns the wikilink markup that references the note at path.
func (s *Service) GenerateLink(_ context.Context, path string) (string, error) {
	n, ok := s.graph.FindByPath(path)
	if !ok {
		return "", fmt.Errorf("noteservice: %s: %w", path, apperr.ErrNotFound)
	}
	return s.graph.GenerateLink(n.ID)
}

// AddRelation records a manual typed edge between two nodes and persists
// the graph. Manual edges survive sync runs.
func (s *Service) AddRelation(_ context.Context, sourceID, targetID string, rel graph.RelationType) error {
	meta := map[string]string{graph.MetaOrigin: graph.OriginManual}
	if err := s.graph.AddEdge(sourceID, targetID, rel, 1, meta); err != nil {
		return err
	}
	return s.graph.Save(s.snapshotPath)
}

// CacheStats returns hash cache diagnostics.
func (s *Service) CacheStats(_ context.Context) hashtrack.Stats {
	return s.tracker.Stats()
}

// ClearCache drops the hash cache and note mapping. The next sync treats
// every file as new.
func (s *Service) ClearCache(_ context.Context) error {
	return s.tracker.Clear()
}

// GraphStats returns graph diagnostics.
func (s *Service) GraphStats(_ context.Context) graph.Stats {
	return s.graph.Stats()
}

// GraphDump is a full copy of the graph for visualization clients.
type GraphDump struct {
	Nodes      []graph.Node
	Edges      []graph.Edge
	Unresolved []graph.UnresolvedLink
}

// GraphDump returns every node, edge, and unresolved link.
func (s *Service) GraphDump(_ context.Context) GraphDump {
	return GraphDump{
		Nodes:      s.graph.Nodes(),
		Edges:      s.graph.Edges(),
		Unresolved: s.graph.Unresolved(),
	}
}

// buildNoteDetail constructs a NoteDetail from raw content without
// re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data, path)
	if err != nil {
		return nil, err
	}

	detail := &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Category:    res.Category,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   []LinkRef{},
		Outgoing:    []LinkRef{},
		UpdatedAt:   time.Now().UTC(),
	}
	if n, ok := s.graph.FindByPath(path); ok {
		detail.NodeID = n.ID
		detail.UpdatedAt = n.UpdatedAt
		detail.Backlinks = s.linkRefs(s.graph.Backlinks(n.ID), false)
		detail.Outgoing = s.linkRefs(s.graph.Outgoing(n.ID), true)
	}
	return detail, nil
}

// linkRefs maps edges to references on the far end. outgoing selects which
// endpoint is "far".
func (s *Service) linkRefs(edges []graph.Edge, outgoing bool) []LinkRef {
	refs := make([]LinkRef, 0, len(edges))
	for _, e := range edges {
		far := e.Source
		if outgoing {
			far = e.Target
		}
		n, ok := s.graph.GetNode(far)
		if !ok {
			continue
		}
		refs = append(refs, LinkRef{
			NodeID:   n.ID,
			Path:     n.FilePath,
			Title:    n.Title,
			Relation: e.Relation,
		})
	}
	return refs
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
