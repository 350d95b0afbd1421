package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
)

// Graph is the in-memory knowledge graph. All mutating operations keep the
// secondary indexes and the parent/children symmetry intact; the edge set
// never references a missing node id.
//
// Reads take the read lock and may interleave with request handling; sync
// cycles (the single logical writer) serialize externally.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge

	byTitle    map[string][]string
	byCategory map[models.Category]map[string]struct{}
	byTag      map[string]map[string]struct{}
	byPath     map[string]string
	children   map[string]map[string]struct{}

	unresolved []UnresolvedLink
}

// New creates an empty graph.
func New() *Graph {
	g := &Graph{}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string]*Edge)
	g.byTitle = make(map[string][]string)
	g.byCategory = make(map[models.Category]map[string]struct{})
	g.byTag = make(map[string]map[string]struct{})
	g.byPath = make(map[string]string)
	g.children = make(map[string]map[string]struct{})
	g.unresolved = nil
}

func edgeKey(source, target string, rel RelationType) string {
	return source + "\x00" + target + "\x00" + string(rel)
}

// AddNode inserts a node. Returns apperr.ErrAlreadyExists for a duplicate
// id, apperr.ErrConflict for a duplicate file path. Hierarchy relations are
// wired through SetParent, not through the ParentID field here.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("graph: node %s: %w", n.ID, apperr.ErrAlreadyExists)
	}
	if other, ok := g.byPath[n.FilePath]; ok && n.FilePath != "" {
		return fmt.Errorf("graph: path %s already mapped to %s: %w", n.FilePath, other, apperr.ErrConflict)
	}

	n.ParentID = ""
	n.ChildrenIDs = nil
	stored := cloneNode(&n)
	g.nodes[n.ID] = &stored
	g.indexLocked(&stored)
	return nil
}

// UpdateNode applies the non-nil fields of upd and refreshes the indexes.
func (g *Graph) UpdateNode(id string, upd NodeUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("graph: node %s: %w", id, apperr.ErrNotFound)
	}

	g.unindexLocked(n)
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.Category != nil {
		n.Category = *upd.Category
	}
	if upd.Tags != nil {
		n.Tags = append([]string(nil), (*upd.Tags)...)
	}
	if upd.FilePath != nil {
		n.FilePath = *upd.FilePath
	}
	if upd.ContentHash != nil {
		n.ContentHash = *upd.ContentHash
	}
	if upd.UpdatedAt != nil {
		n.UpdatedAt = *upd.UpdatedAt
	}
	if upd.Metadata != nil {
		n.Metadata = make(map[string]string, len(*upd.Metadata))
		for k, v := range *upd.Metadata {
			n.Metadata[k] = v
		}
	}
	g.indexLocked(n)
	return nil
}

// RemoveNode deletes a node and cascades: every edge touching the id goes,
// children lose their parent reference, and the parent's children list drops
// the id. Removing an absent id is a no-op success.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil
	}

	for key, e := range g.edges {
		if e.Source == id || e.Target == id {
			delete(g.edges, key)
		}
	}

	// Detach children.
	for childID := range g.children[id] {
		if child, ok := g.nodes[childID]; ok && child.ParentID == id {
			child.ParentID = ""
		}
	}
	delete(g.children, id)

	// Detach from parent.
	if n.ParentID != "" {
		if parent, ok := g.nodes[n.ParentID]; ok {
			parent.ChildrenIDs = removeString(parent.ChildrenIDs, id)
		}
		if set, ok := g.children[n.ParentID]; ok {
			delete(set, id)
		}
	}

	// Drop unresolved links authored by this node.
	kept := g.unresolved[:0]
	for _, u := range g.unresolved {
		if u.SourceID != id {
			kept = append(kept, u)
		}
	}
	g.unresolved = kept

	g.unindexLocked(n)
	delete(g.nodes, id)
	return nil
}

// AddEdge inserts a typed edge. Both endpoints must exist (Conflict
// otherwise); hierarchy relations additionally reject ancestry cycles and
// keep the parent/children indexes symmetric.
func (g *Graph) AddEdge(source, target string, rel RelationType, weight float64, meta map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(source, target, rel, weight, meta)
}

func (g *Graph) addEdgeLocked(source, target string, rel RelationType, weight float64, meta map[string]string) error {
	if !rel.Valid() {
		return fmt.Errorf("graph: unknown relation %q: %w", rel, apperr.ErrConflict)
	}
	if _, ok := g.nodes[source]; !ok {
		return fmt.Errorf("graph: edge source %s: %w", source, apperr.ErrConflict)
	}
	if _, ok := g.nodes[target]; !ok {
		return fmt.Errorf("graph: edge target %s: %w", target, apperr.ErrConflict)
	}

	switch rel {
	case RelationParentOf:
		if err := g.setParentLocked(target, source); err != nil {
			return err
		}
	case RelationChildOf:
		if err := g.setParentLocked(source, target); err != nil {
			return err
		}
	}

	if weight == 0 {
		weight = 1.0
	}
	e := Edge{
		Source:    source,
		Target:    target,
		Relation:  rel,
		Weight:    weight,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	stored := cloneEdge(&e)
	g.edges[edgeKey(source, target, rel)] = &stored
	return nil
}

// SetParent records parentID as the parent of childID, validating both
// exist and that the assignment creates no ancestry cycle.
func (g *Graph) SetParent(childID, parentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setParentLocked(childID, parentID)
}

func (g *Graph) setParentLocked(childID, parentID string) error {
	child, ok := g.nodes[childID]
	if !ok {
		return fmt.Errorf("graph: child %s: %w", childID, apperr.ErrNotFound)
	}
	parent, ok := g.nodes[parentID]
	if !ok {
		return fmt.Errorf("graph: parent %s: %w", parentID, apperr.ErrNotFound)
	}
	if childID == parentID || g.isAncestorLocked(childID, parentID) {
		return fmt.Errorf("graph: %s cannot be its own ancestor: %w", childID, apperr.ErrConflict)
	}

	// Detach from any previous parent first.
	if child.ParentID != "" && child.ParentID != parentID {
		if prev, ok := g.nodes[child.ParentID]; ok {
			prev.ChildrenIDs = removeString(prev.ChildrenIDs, childID)
		}
		if set, ok := g.children[child.ParentID]; ok {
			delete(set, childID)
		}
	}

	child.ParentID = parentID
	if !containsString(parent.ChildrenIDs, childID) {
		parent.ChildrenIDs = append(parent.ChildrenIDs, childID)
		sort.Strings(parent.ChildrenIDs)
	}
	if g.children[parentID] == nil {
		g.children[parentID] = make(map[string]struct{})
	}
	g.children[parentID][childID] = struct{}{}
	return nil
}

// isAncestorLocked reports whether candidate is an ancestor of nodeID.
func (g *Graph) isAncestorLocked(candidate, nodeID string) bool {
	seen := make(map[string]struct{})
	cur := nodeID
	for cur != "" {
		if _, loop := seen[cur]; loop {
			return false
		}
		seen[cur] = struct{}{}
		n, ok := g.nodes[cur]
		if !ok {
			return false
		}
		if n.ParentID == candidate {
			return true
		}
		cur = n.ParentID
	}
	return false
}

// RemoveEdge deletes one edge. Absent edges are a no-op success.
func (g *Graph) RemoveEdge(source, target string, rel RelationType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := edgeKey(source, target, rel)
	if e, ok := g.edges[key]; ok {
		g.detachHierarchyLocked(e)
		delete(g.edges, key)
	}
	return nil
}

// detachHierarchyLocked unwinds the parent/children fields wired by a
// hierarchy edge, keeping the symmetry invariant when such edges go away.
func (g *Graph) detachHierarchyLocked(e *Edge) {
	var parentID, childID string
	switch e.Relation {
	case RelationParentOf:
		parentID, childID = e.Source, e.Target
	case RelationChildOf:
		parentID, childID = e.Target, e.Source
	default:
		return
	}
	if child, ok := g.nodes[childID]; ok && child.ParentID == parentID {
		child.ParentID = ""
	}
	if parent, ok := g.nodes[parentID]; ok {
		parent.ChildrenIDs = removeString(parent.ChildrenIDs, childID)
	}
	if set, ok := g.children[parentID]; ok {
		delete(set, childID)
	}
}

// RemoveEdgesByRelation deletes every edge of the given relation type and
// returns how many were removed. Used to rebuild the wiki_link set each sync.
func (g *Graph) RemoveEdgesByRelation(rel RelationType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, e := range g.edges {
		if e.Relation == rel {
			g.detachHierarchyLocked(e)
			delete(g.edges, key)
			removed++
		}
	}
	return removed
}

// RemoveContentEdgesFrom deletes the content-derived typed edges (origin
// "content", any relation except wiki_link) sourced at id, so a changed note
// can re-declare its relationships without duplicates. Manual edges stay.
func (g *Graph) RemoveContentEdgesFrom(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, e := range g.edges {
		if e.Source != id || e.Relation == RelationWikiLink {
			continue
		}
		if e.Metadata[MetaOrigin] == OriginContent {
			g.detachHierarchyLocked(e)
			delete(g.edges, key)
		}
	}
}

// GetNode returns a copy of the node with the given id.
func (g *Graph) GetNode(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Backlinks returns every edge whose target is id.
func (g *Graph) Backlinks(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.Target == id {
			out = append(out, cloneEdge(e))
		}
	}
	sortEdges(out)
	return out
}

// Outgoing returns every edge whose source is id.
func (g *Graph) Outgoing(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, cloneEdge(e))
		}
	}
	sortEdges(out)
	return out
}

// FindByCategory returns the nodes in a category via the maintained index.
func (g *Graph) FindByCategory(cat models.Category) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectLocked(g.byCategory[cat])
}

// FindByTag returns the nodes carrying a tag via the maintained index.
func (g *Graph) FindByTag(tag string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectLocked(g.byTag[tag])
}

// FindByPath returns the node backed by the given vault path.
func (g *Graph) FindByPath(path string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byPath[path]
	if !ok {
		return Node{}, false
	}
	return cloneNode(g.nodes[id]), true
}

// Children returns copies of the direct children of id.
func (g *Graph) Children(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectLocked(g.children[id])
}

// Nodes returns copies of all nodes, ordered by id.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, cloneNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns copies of all edges.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, cloneEdge(e))
	}
	sortEdges(out)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// NodeIDs returns the set of current node ids. Used for orphan detection
// against the vector index.
func (g *Graph) NodeIDs() map[string]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]struct{}, len(g.nodes))
	for id := range g.nodes {
		out[id] = struct{}{}
	}
	return out
}

// SetUnresolved replaces the recorded unresolved wikilinks.
func (g *Graph) SetUnresolved(links []UnresolvedLink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unresolved = append([]UnresolvedLink(nil), links...)
}

// Unresolved returns the recorded unresolved wikilinks.
func (g *Graph) Unresolved() []UnresolvedLink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]UnresolvedLink(nil), g.unresolved...)
}

// GenerateLink returns a path-qualified wikilink reference for a node,
// e.g. [[research/my-note]]. Path-qualified links stay unambiguous when
// multiple notes share a bare title, and resolve by the exact-path strategy.
func (g *Graph) GenerateLink(id string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return "", fmt.Errorf("graph: node %s: %w", id, apperr.ErrNotFound)
	}
	if n.FilePath != "" {
		return "[[" + strings.TrimSuffix(n.FilePath, ".md") + "]]", nil
	}
	return "[[" + n.Title + "]]", nil
}

// Orphans returns nodes without incoming edges.
func (g *Graph) Orphans() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasIncoming := make(map[string]struct{})
	for _, e := range g.edges {
		hasIncoming[e.Target] = struct{}{}
	}
	var out []Node
	for id, n := range g.nodes {
		if _, ok := hasIncoming[id]; !ok {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats summarizes the graph.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		TotalNodes:      len(g.nodes),
		TotalEdges:      len(g.edges),
		Categories:      make(map[string]int),
		Tags:            make(map[string]int),
		RelationTypes:   make(map[RelationType]int),
		UnresolvedLinks: len(g.unresolved),
	}
	for cat, set := range g.byCategory {
		s.Categories[string(cat)] = len(set)
	}
	for tag, set := range g.byTag {
		s.Tags[tag] = len(set)
	}
	hasIncoming := make(map[string]struct{})
	for _, e := range g.edges {
		s.RelationTypes[e.Relation]++
		hasIncoming[e.Target] = struct{}{}
	}
	for id := range g.nodes {
		if _, ok := hasIncoming[id]; !ok {
			s.Orphans++
		}
	}
	return s
}

// Clear drops all nodes, edges, indexes, and unresolved links.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Lookup builds a point-in-time resolver index from the current node set.
func (g *Graph) Lookup() *Lookup {
	g.mu.RLock()
	defer g.mu.RUnlock()

	l := newLookup()
	for id, n := range g.nodes {
		qualified := strings.TrimSuffix(n.FilePath, ".md")
		l.add(id, n.Title, qualified, parser.Stem(n.FilePath))
	}
	return l
}

func (g *Graph) indexLocked(n *Node) {
	g.byTitle[n.Title] = append(g.byTitle[n.Title], n.ID)
	if g.byCategory[n.Category] == nil {
		g.byCategory[n.Category] = make(map[string]struct{})
	}
	g.byCategory[n.Category][n.ID] = struct{}{}
	for _, tag := range n.Tags {
		if g.byTag[tag] == nil {
			g.byTag[tag] = make(map[string]struct{})
		}
		g.byTag[tag][n.ID] = struct{}{}
	}
	if n.FilePath != "" {
		g.byPath[n.FilePath] = n.ID
	}
}

func (g *Graph) unindexLocked(n *Node) {
	g.byTitle[n.Title] = removeString(g.byTitle[n.Title], n.ID)
	if len(g.byTitle[n.Title]) == 0 {
		delete(g.byTitle, n.Title)
	}
	if set, ok := g.byCategory[n.Category]; ok {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(g.byCategory, n.Category)
		}
	}
	for _, tag := range n.Tags {
		if set, ok := g.byTag[tag]; ok {
			delete(set, n.ID)
			if len(set) == 0 {
				delete(g.byTag, tag)
			}
		}
	}
	if n.FilePath != "" && g.byPath[n.FilePath] == n.ID {
		delete(g.byPath, n.FilePath)
	}
}

func (g *Graph) collectLocked(ids map[string]struct{}) []Node {
	out := make([]Node, 0, len(ids))
	for id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Relation < edges[j].Relation
	})
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, item := range s {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

func containsString(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}
