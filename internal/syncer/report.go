package syncer

import "time"

// Phase is the stage a sync run is in. Phases advance strictly forward;
// Aborted is terminal and only reached from a fatal error.
type Phase string

const (
	PhaseScanning      Phase = "scanning"
	PhaseDiffing       Phase = "diffing"
	PhaseApplying      Phase = "applying"
	PhaseLinkResolving Phase = "link_resolving"
	PhasePersisting    Phase = "persisting"
	PhaseDone          Phase = "done"
	PhaseAborted       Phase = "aborted"
)

// Changes is the diff of the vault against the tracked state.
type Changes struct {
	NewFiles      []string `json:"new_files"`
	ModifiedFiles []string `json:"modified_files"`
	DeletedFiles  []string `json:"deleted_files"`
	TotalChanges  int      `json:"total_changes"`
}

// Cleanup summarizes the post-sync housekeeping pass.
type Cleanup struct {
	OrphanedVectorsRemoved int `json:"orphaned_vectors_removed"`
}

// Report is the full account of one sync run. Per-file failures land in
// Errors without stopping the run; only fatal conditions (unreadable vault,
// snapshot persist failure, cancellation) abort it.
type Report struct {
	Completed       bool      `json:"completed"`
	Phase           Phase     `json:"phase"`
	ForceRebuild    bool      `json:"force_rebuild"`
	StartedAt       time.Time `json:"started_at"`
	VaultFilesFound int       `json:"vault_files_found"`
	Changes         Changes   `json:"changes_detected"`
	ActionsTaken    []string  `json:"actions_taken"`
	NodesBefore     int       `json:"graph_nodes_before"`
	NodesAfter      int       `json:"graph_nodes_after"`
	EdgesBefore     int       `json:"graph_edges_before"`
	EdgesAfter      int       `json:"graph_edges_after"`
	LinksResolved   int       `json:"links_resolved"`
	LinksUnresolved int       `json:"links_unresolved"`
	Cleanup         Cleanup   `json:"cleanup_results"`
	Errors          []string  `json:"errors"`
	Warnings        []string  `json:"warnings"`
	ProcessingTime  float64   `json:"processing_time_seconds"`
}

func (r *Report) action(msg string) {
	r.ActionsTaken = append(r.ActionsTaken, msg)
}

func (r *Report) fileError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
