// Package syncer reconciles the markdown vault with the knowledge graph and
// the vector index. A sync run scans the vault, diffs it against the tracked
// fingerprints, applies node changes, re-resolves wikilinks across the whole
// graph, and persists the result.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/hashtrack"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vecindex"
)

// EventCallback receives sync lifecycle notifications. kind is
// "sync.started" or "sync.completed"; payload is the Report for completion
// events.
type EventCallback func(kind string, payload any)

// Engine drives sync runs. At most one run executes at a time; concurrent
// callers queue on the internal mutex.
type Engine struct {
	mu           sync.Mutex
	store        storage.Provider
	tracker      *hashtrack.Tracker
	graph        *graph.Graph
	vec          vecindex.Index
	snapshotPath string
	logger       *slog.Logger
	events       EventCallback
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents registers a callback for sync lifecycle events.
func WithEvents(cb EventCallback) Option {
	return func(e *Engine) { e.events = cb }
}

// New creates a sync engine over the given vault, tracker, graph, and
// vector index. snapshotPath is where the graph is persisted after each run.
func New(store storage.Provider, tracker *hashtrack.Tracker, g *graph.Graph, vec vecindex.Index, snapshotPath string, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		tracker:      tracker,
		graph:        g,
		vec:          vec,
		snapshotPath: snapshotPath,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// parsedNote pairs a vault file with its parse result for the
// link-resolution pass.
type parsedNote struct {
	path   string
	nodeID string
	result *parser.Result
}

// Sync runs one full reconciliation. With forceRebuild the graph, hash
// cache, and vector index are torn down first and every file is treated as
// new. The returned Report is non-nil even on fatal errors.
func (e *Engine) Sync(ctx context.Context, forceRebuild bool) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := &Report{
		Phase:        PhaseScanning,
		ForceRebuild: forceRebuild,
		StartedAt:    start.UTC(),
		NodesBefore:  e.graph.NodeCount(),
		EdgesBefore:  e.graph.EdgeCount(),
	}
	e.emit("sync.started", map[string]any{"force_rebuild": forceRebuild})
	e.logger.Info("sync: started", slog.Bool("force_rebuild", forceRebuild))

	defer func() {
		report.ProcessingTime = time.Since(start).Seconds()
		report.NodesAfter = e.graph.NodeCount()
		report.EdgesAfter = e.graph.EdgeCount()
		e.emit("sync.completed", report)
	}()

	metas, err := e.store.List("")
	if err != nil {
		return e.abort(report, fmt.Errorf("syncer: scan vault: %w", err))
	}
	report.VaultFilesFound = len(metas)

	if forceRebuild {
		if err := e.teardown(ctx, report); err != nil {
			return e.abort(report, err)
		}
	}

	report.Phase = PhaseDiffing
	changes := e.diff(metas, report)

	report.Phase = PhaseApplying
	parsed, err := e.apply(ctx, metas, changes, report)
	if err != nil {
		return e.abort(report, err)
	}

	report.Phase = PhaseLinkResolving
	e.resolveLinks(parsed, report)

	report.Phase = PhasePersisting
	persistErr := e.graph.Save(e.snapshotPath)

	// Orphan cleanup runs even when the snapshot could not be written, so
	// the vector index never retains entries for deleted nodes.
	e.cleanupOrphans(ctx, report)

	if persistErr != nil {
		return e.abort(report, fmt.Errorf("syncer: persist graph: %w", persistErr))
	}

	report.Phase = PhaseDone
	report.Completed = true
	e.logger.Info("sync: completed",
		slog.Int("files", report.VaultFilesFound),
		slog.Int("changes", report.Changes.TotalChanges),
		slog.Int("nodes", report.NodesAfter),
		slog.Int("edges", report.EdgesAfter),
		slog.Duration("took", time.Since(start)))
	return report, nil
}

func (e *Engine) abort(report *Report, err error) (*Report, error) {
	report.Phase = PhaseAborted
	report.Completed = false
	report.Errors = append(report.Errors, err.Error())
	e.logger.Error("sync: aborted", slog.String("error", err.Error()))
	return report, err
}

// teardown clears all derived state for a force rebuild. The vault itself
// is never touched.
func (e *Engine) teardown(ctx context.Context, report *Report) error {
	if err := e.vec.Clear(ctx); err != nil {
		return fmt.Errorf("syncer: clear vector index: %w", err)
	}
	e.graph.Clear()
	if err := e.tracker.Clear(); err != nil {
		return fmt.Errorf("syncer: clear hash tracker: %w", err)
	}
	if err := os.Remove(e.snapshotPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncer: remove snapshot: %w", err)
	}
	report.action("force rebuild: cleared graph, hash cache, and vector index")
	return nil
}

// diff splits the vault listing into new, modified, deleted, and unchanged
// sets. The four sets are disjoint by construction: membership is decided
// once per path from the note mapping and the cached fingerprint.
func (e *Engine) diff(metas []models.NoteMetadata, report *Report) *Changes {
	changes := &report.Changes

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		nodeID, mapped := e.tracker.NodeID(m.Path)
		if !mapped {
			changes.NewFiles = append(changes.NewFiles, m.Path)
			continue
		}
		cached, ok := e.tracker.Get(nodeID)
		if !ok || cached != m.Checksum {
			changes.ModifiedFiles = append(changes.ModifiedFiles, m.Path)
		}
	}

	for path := range e.tracker.Mappings() {
		if _, ok := disk[path]; !ok {
			changes.DeletedFiles = append(changes.DeletedFiles, path)
		}
	}

	changes.TotalChanges = len(changes.NewFiles) + len(changes.ModifiedFiles) + len(changes.DeletedFiles)
	e.logger.Debug("sync: diffed",
		slog.Int("new", len(changes.NewFiles)),
		slog.Int("modified", len(changes.ModifiedFiles)),
		slog.Int("deleted", len(changes.DeletedFiles)))
	return changes
}

// apply mutates the graph, tracker, and vector index to match the diff.
// Deletions go first so a file recreated under a deleted path gets a fresh
// node. Per-file failures are recorded and skipped.
func (e *Engine) apply(ctx context.Context, metas []models.NoteMetadata, changes *Changes, report *Report) ([]parsedNote, error) {
	for _, path := range changes.DeletedFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.removeNote(ctx, path, report)
	}

	changed := make(map[string]bool, changes.TotalChanges)
	for _, p := range changes.NewFiles {
		changed[p] = true
	}
	for _, p := range changes.ModifiedFiles {
		changed[p] = true
	}

	parsed := make([]parsedNote, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := e.store.Read(m.Path)
		if err != nil {
			report.fileError(fmt.Sprintf("read %s: %v", m.Path, err))
			continue
		}
		res, err := parser.Parse(data, m.Path)
		if err != nil {
			report.fileError(fmt.Sprintf("parse %s: %v", m.Path, err))
			continue
		}

		nodeID, mapped := e.tracker.NodeID(m.Path)
		if !changed[m.Path] && mapped {
			// Unchanged files still feed link resolution.
			parsed = append(parsed, parsedNote{path: m.Path, nodeID: nodeID, result: res})
			continue
		}

		nodeID, err = e.upsertNote(ctx, m, data, res, nodeID, mapped, report)
		if err != nil {
			report.fileError(fmt.Sprintf("apply %s: %v", m.Path, err))
			continue
		}
		parsed = append(parsed, parsedNote{path: m.Path, nodeID: nodeID, result: res})
	}
	return parsed, nil
}

func (e *Engine) removeNote(ctx context.Context, path string, report *Report) {
	nodeID, ok := e.tracker.NodeID(path)
	if !ok {
		return
	}
	if err := e.graph.RemoveNode(nodeID); err != nil {
		report.fileError(fmt.Sprintf("remove node for %s: %v", path, err))
		return
	}
	if err := e.vec.Delete(ctx, nodeID); err != nil {
		report.warn(fmt.Sprintf("vector delete for %s: %v", path, err))
	}
	if err := e.tracker.RemoveNoteMapping(path); err != nil {
		report.warn(fmt.Sprintf("unmap %s: %v", path, err))
	}
	if err := e.tracker.Remove(nodeID); err != nil {
		report.warn(fmt.Sprintf("drop hash entry for %s: %v", path, err))
	}
	report.action("deleted note " + path)
	e.logger.Debug("sync: removed", slog.String("path", path), slog.String("node", nodeID))
}

// upsertNote creates or updates the graph node for one file, re-embeds it,
// and records the new fingerprint. The three writes happen together so a
// crash mid-sync is healed by the next run: an unrecorded fingerprint just
// means the file is processed again.
func (e *Engine) upsertNote(ctx context.Context, m models.NoteMetadata, data []byte, res *parser.Result, nodeID string, mapped bool, report *Report) (string, error) {
	contentHash := checksum.SumWithMeta([]byte(res.Body), res.Frontmatter)
	now := time.Now().UTC()

	if !mapped {
		nodeID = uuid.NewString()
		node := graph.Node{
			ID:          nodeID,
			Title:       res.Title,
			Category:    res.Category,
			Tags:        res.Tags,
			FilePath:    m.Path,
			ContentHash: contentHash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.graph.AddNode(node); err != nil {
			return "", err
		}
		if err := e.tracker.SetNoteMapping(m.Path, nodeID); err != nil {
			return "", err
		}
		report.action("added note " + m.Path)
	} else {
		upd := graph.NodeUpdate{
			Title:       &res.Title,
			Category:    &res.Category,
			Tags:        &res.Tags,
			ContentHash: &contentHash,
			UpdatedAt:   &now,
		}
		if err := e.graph.UpdateNode(nodeID, upd); err != nil {
			return "", err
		}
		report.action("updated note " + m.Path)
	}

	meta := map[string]string{
		"title":    res.Title,
		"path":     m.Path,
		"category": string(res.Category),
	}
	if err := e.vec.Upsert(ctx, nodeID, res.Title+"\n"+res.Body, meta); err != nil {
		report.warn(fmt.Sprintf("vector upsert for %s: %v", m.Path, err))
	}
	if err := e.tracker.Update(nodeID, m.Checksum, map[string]string{"path": m.Path}); err != nil {
		return "", err
	}
	e.logger.Debug("sync: upserted", slog.String("path", m.Path), slog.String("node", nodeID))
	return nodeID, nil
}

// resolveLinks rebuilds all content-derived edges from the parsed notes.
// Wikilink and typed content edges are dropped and re-derived as a set;
// manually added relations are left alone. Targets that resolve to nothing
// are kept as unresolved links so they connect once the note appears.
func (e *Engine) resolveLinks(parsed []parsedNote, report *Report) {
	e.graph.RemoveEdgesByRelation(graph.RelationWikiLink)
	for _, p := range parsed {
		e.graph.RemoveContentEdgesFrom(p.nodeID)
	}

	lookup := e.graph.Lookup()
	var unresolved []graph.UnresolvedLink

	for _, p := range parsed {
		for _, link := range p.result.Links {
			res := lookup.Resolve(link.Target)
			if res.Ambiguous {
				report.warn(fmt.Sprintf("ambiguous link [[%s]] in %s: candidates %v", link.Target, p.path, res.Candidates))
			}
			if res.NodeID == "" || res.NodeID == p.nodeID {
				if res.NodeID == "" {
					unresolved = append(unresolved, graph.UnresolvedLink{
						SourceID: p.nodeID,
						Target:   link.Target,
						Display:  link.Display,
						Line:     link.Line,
					})
					report.LinksUnresolved++
				}
				continue
			}
			meta := map[string]string{
				graph.MetaOrigin:  graph.OriginContent,
				graph.MetaDisplay: link.Display,
				graph.MetaLine:    fmt.Sprintf("%d", link.Line),
				graph.MetaTarget:  link.Target,
			}
			if link.Context != "" {
				meta[graph.MetaContext] = link.Context
			}
			if err := e.graph.AddEdge(p.nodeID, res.NodeID, graph.RelationWikiLink, 1, meta); err != nil {
				report.warn(fmt.Sprintf("link edge %s -> %s: %v", p.path, link.Target, err))
				continue
			}
			report.LinksResolved++
		}

		for _, rel := range p.result.Relations {
			relType := graph.RelationType(rel.Type)
			if relType == graph.RelationParentOf || relType == graph.RelationChildOf {
				continue // handled below through the hierarchy fields
			}
			res := lookup.Resolve(rel.Target)
			if res.NodeID == "" || res.NodeID == p.nodeID {
				continue
			}
			meta := map[string]string{graph.MetaOrigin: graph.OriginContent}
			if err := e.graph.AddEdge(p.nodeID, res.NodeID, relType, 1, meta); err != nil {
				report.warn(fmt.Sprintf("relation %s %s -> %s: %v", rel.Type, p.path, rel.Target, err))
			}
		}

		e.applyHierarchy(p, lookup, report)
	}

	e.graph.SetUnresolved(unresolved)
	e.logger.Debug("sync: links resolved",
		slog.Int("resolved", report.LinksResolved),
		slog.Int("unresolved", report.LinksUnresolved))
}

func (e *Engine) applyHierarchy(p parsedNote, lookup *graph.Lookup, report *Report) {
	meta := map[string]string{graph.MetaOrigin: graph.OriginContent}

	if p.result.Parent != "" {
		if res := lookup.Resolve(p.result.Parent); res.NodeID != "" && res.NodeID != p.nodeID {
			if err := e.graph.AddEdge(res.NodeID, p.nodeID, graph.RelationParentOf, 1, meta); err != nil {
				report.warn(fmt.Sprintf("parent of %s: %v", p.path, err))
			}
		}
	}
	for _, childTarget := range p.result.Children {
		if res := lookup.Resolve(childTarget); res.NodeID != "" && res.NodeID != p.nodeID {
			if err := e.graph.AddEdge(p.nodeID, res.NodeID, graph.RelationParentOf, 1, meta); err != nil {
				report.warn(fmt.Sprintf("child %s of %s: %v", childTarget, p.path, err))
			}
		}
	}
}

// cleanupOrphans removes vector entries whose node no longer exists.
func (e *Engine) cleanupOrphans(ctx context.Context, report *Report) {
	ids, err := e.vec.ListIDs(ctx)
	if err != nil {
		report.warn(fmt.Sprintf("list vector ids: %v", err))
		return
	}
	live := e.graph.NodeIDs()
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		if err := e.vec.Delete(ctx, id); err != nil {
			report.warn(fmt.Sprintf("remove orphaned vector %s: %v", id, err))
			continue
		}
		report.Cleanup.OrphanedVectorsRemoved++
	}
	if report.Cleanup.OrphanedVectorsRemoved > 0 {
		report.action(fmt.Sprintf("removed %d orphaned vector entries", report.Cleanup.OrphanedVectorsRemoved))
	}
}

func (e *Engine) emit(kind string, payload any) {
	if e.events != nil {
		e.events(kind, payload)
	}
}
