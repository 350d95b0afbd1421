package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// snapshot is the on-disk form of the graph. Indexes are not persisted;
// Load rebuilds them from the node set.
type snapshot struct {
	SavedAt    time.Time        `json:"saved_at"`
	Nodes      []Node           `json:"nodes"`
	Edges      []Edge           `json:"edges"`
	Unresolved []UnresolvedLink `json:"unresolved_links,omitempty"`
}

// Save writes the full graph state to path atomically. A crash mid-write
// leaves the previous snapshot intact.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	snap := snapshot{
		SavedAt:    time.Now().UTC(),
		Nodes:      make([]Node, 0, len(g.nodes)),
		Edges:      make([]Edge, 0, len(g.edges)),
		Unresolved: append([]UnresolvedLink(nil), g.unresolved...),
	}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, cloneNode(n))
	}
	for _, e := range g.edges {
		snap.Edges = append(snap.Edges, cloneEdge(e))
	}
	g.mu.RUnlock()

	sortNodes(snap.Nodes)
	sortEdges(snap.Edges)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ansuz-graph-*")
	if err != nil {
		return fmt.Errorf("graph: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("graph: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("graph: replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the graph with the snapshot at path and rebuilds every
// index. A missing file leaves the graph empty without error; edges whose
// endpoints are gone from the node set are skipped.
func (g *Graph) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("graph: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("graph: decode snapshot %s: %w", path, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()

	for i := range snap.Nodes {
		n := cloneNode(&snap.Nodes[i])
		// Hierarchy fields are re-derived from parent_of edges below so a
		// hand-edited snapshot cannot desynchronize them.
		n.ParentID = ""
		n.ChildrenIDs = nil
		g.nodes[n.ID] = &n
		g.indexLocked(&n)
	}
	for i := range snap.Edges {
		e := snap.Edges[i]
		if err := g.addEdgeLocked(e.Source, e.Target, e.Relation, e.Weight, e.Metadata); err != nil {
			continue
		}
		if stored, ok := g.edges[edgeKey(e.Source, e.Target, e.Relation)]; ok && !e.CreatedAt.IsZero() {
			stored.CreatedAt = e.CreatedAt
		}
	}
	for _, u := range snap.Unresolved {
		if _, ok := g.nodes[u.SourceID]; ok {
			g.unresolved = append(g.unresolved, u)
		}
	}
	return nil
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
