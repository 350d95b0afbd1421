// Package graph maintains the in-memory knowledge graph: nodes projected
// from vault notes, typed edges between them, and the secondary indexes that
// make category/tag/path/hierarchy lookups cheap.
package graph

import (
	"time"

	"github.com/starford/ansuz/internal/models"
)

// RelationType enumerates the edge semantics the graph understands.
type RelationType string

const (
	RelationParentOf    RelationType = "parent_of"
	RelationChildOf     RelationType = "child_of"
	RelationSupports    RelationType = "supports"
	RelationContradicts RelationType = "contradicts"
	RelationReferences  RelationType = "references"
	RelationDependsOn   RelationType = "depends_on"
	RelationWikiLink    RelationType = "wiki_link"
	RelationRelatedTo   RelationType = "related_to"
	RelationExtends     RelationType = "extends"
	RelationImplements  RelationType = "implements"
	RelationExampleOf   RelationType = "example_of"
)

var knownRelations = map[RelationType]struct{}{
	RelationParentOf: {}, RelationChildOf: {}, RelationSupports: {},
	RelationContradicts: {}, RelationReferences: {}, RelationDependsOn: {},
	RelationWikiLink: {}, RelationRelatedTo: {}, RelationExtends: {},
	RelationImplements: {}, RelationExampleOf: {},
}

// Valid reports whether r is a known relation type.
func (r RelationType) Valid() bool {
	_, ok := knownRelations[r]
	return ok
}

// Edge metadata keys. Origin distinguishes edges re-derived from note
// content on every sync from edges added through explicit tool calls, which
// must survive syncs untouched.
const (
	MetaOrigin  = "origin"
	MetaDisplay = "display"
	MetaLine    = "line"
	MetaContext = "context"
	MetaTarget  = "target"

	OriginContent = "content"
	OriginManual  = "manual"
)

// Node is the graph-side projection of a vault note. Note content is never
// embedded here; callers needing content read the file or query the vector
// index.
type Node struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    models.Category   `json:"category"`
	Tags        []string          `json:"tags,omitempty"`
	FilePath    string            `json:"file_path"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ParentID    string            `json:"parent_id,omitempty"`
	ChildrenIDs []string          `json:"children_ids,omitempty"`
}

// Edge is a directed typed relationship between two nodes.
type Edge struct {
	Source    string            `json:"source"`
	Target    string            `json:"target"`
	Relation  RelationType      `json:"relation_type"`
	Weight    float64           `json:"weight,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// UnresolvedLink records a wikilink whose target note does not exist yet.
// Kept across syncs so forward references resolve once the target appears.
type UnresolvedLink struct {
	SourceID string `json:"source_id"`
	Target   string `json:"target"`
	Display  string `json:"display,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// NodeUpdate carries the mutable fields for UpdateNode. Nil pointers leave
// the field untouched.
type NodeUpdate struct {
	Title       *string
	Category    *models.Category
	Tags        *[]string
	FilePath    *string
	ContentHash *string
	UpdatedAt   *time.Time
	Metadata    *map[string]string
}

// Stats summarizes the graph for diagnostics and the visualization layer.
type Stats struct {
	TotalNodes      int                  `json:"total_nodes"`
	TotalEdges      int                  `json:"total_edges"`
	Categories      map[string]int       `json:"categories"`
	Tags            map[string]int       `json:"tags"`
	RelationTypes   map[RelationType]int `json:"relation_types"`
	Orphans         int                  `json:"orphans"`
	UnresolvedLinks int                  `json:"unresolved_links"`
}

func cloneNode(n *Node) Node {
	out := *n
	out.Tags = append([]string(nil), n.Tags...)
	out.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	if n.Metadata != nil {
		out.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func cloneEdge(e *Edge) Edge {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
