package api

import (
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// SyncRequest is the request body for triggering a sync run.
type SyncRequest struct {
	ForceRebuild bool `json:"force_rebuild"`
}

// AddRelationRequest is the request body for adding a manual relation.
type AddRelationRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Relation string `json:"relation_type"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response.
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

// SearchResponse wraps semantic search results.
type SearchResponse struct {
	Results []noteservice.SearchResult `json:"results"`
}

// GraphResponse is the full graph dump for visualization clients.
type GraphResponse struct {
	Nodes      []graph.Node           `json:"nodes"`
	Edges      []graph.Edge           `json:"edges"`
	Unresolved []graph.UnresolvedLink `json:"unresolved_links"`
}

// LinkResponse carries generated wikilink markup.
type LinkResponse struct {
	Link string `json:"link"`
}
