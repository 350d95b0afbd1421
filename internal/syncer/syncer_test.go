package syncer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/hashtrack"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vecindex"
)

type fixture struct {
	engine  *Engine
	vault   *storage.Vault
	tracker *hashtrack.Tracker
	graph   *graph.Graph
	vec     *vecindex.Memory
	root    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	root := t.TempDir()
	vault, err := storage.NewVault(root)
	require.NoError(t, err)

	stateDir := t.TempDir()
	tracker, err := hashtrack.Open(stateDir, logger)
	require.NoError(t, err)

	g := graph.New()
	vec := vecindex.NewMemory(vecindex.NewLocalEmbedder(0))
	snapshot := filepath.Join(stateDir, "graph_snapshot.json")

	return &fixture{
		engine:  New(vault, tracker, g, vec, snapshot, logger),
		vault:   vault,
		tracker: tracker,
		graph:   g,
		vec:     vec,
		root:    root,
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))))
}

func TestSyncNewFileWithForwardReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "alpha.md", "# Alpha\n\nSee [[Beta]] for details.\n")

	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.True(t, report.Completed)
	assert.Equal(t, PhaseDone, report.Phase)
	assert.Equal(t, 1, report.VaultFilesFound)
	assert.Equal(t, []string{"alpha.md"}, report.Changes.NewFiles)
	assert.Equal(t, 1, report.Changes.TotalChanges)
	assert.Equal(t, 1, f.graph.NodeCount())
	assert.Equal(t, 0, f.graph.EdgeCount())
	assert.Equal(t, 1, report.LinksUnresolved)

	unres := f.graph.Unresolved()
	require.Len(t, unres, 1)
	assert.Equal(t, "Beta", unres[0].Target)

	// The target appears later; the pending link must resolve.
	f.write(t, "beta.md", "# Beta\n\nContent.\n")
	report, err = f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, f.graph.NodeCount())
	assert.Equal(t, 1, f.graph.EdgeCount())
	assert.Equal(t, 1, report.LinksResolved)
	assert.Empty(t, f.graph.Unresolved())

	alpha, ok := f.graph.FindByPath("alpha.md")
	require.True(t, ok)
	beta, ok := f.graph.FindByPath("beta.md")
	require.True(t, ok)

	back := f.graph.Backlinks(beta.ID)
	require.Len(t, back, 1)
	assert.Equal(t, alpha.ID, back[0].Source)
	assert.Equal(t, graph.RelationWikiLink, back[0].Relation)
}

func TestSyncLinkEdgeMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "alpha.md", "# Alpha\n\nSee [[Beta|the beta note]] for details.\n")
	f.write(t, "beta.md", "# Beta\n\nContent.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	beta, ok := f.graph.FindByPath("beta.md")
	require.True(t, ok)
	back := f.graph.Backlinks(beta.ID)
	require.Len(t, back, 1)

	meta := back[0].Metadata
	assert.Equal(t, graph.OriginContent, meta[graph.MetaOrigin])
	assert.Equal(t, "the beta note", meta[graph.MetaDisplay])
	assert.Equal(t, "Beta", meta[graph.MetaTarget])
	assert.Equal(t, "3", meta[graph.MetaLine])
	assert.Contains(t, meta[graph.MetaContext], "See [[Beta|the beta note]] for details.")
}

func TestSyncUnchangedFilesSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "alpha.md", "# Alpha\n\nBody.\n")
	f.write(t, "beta.md", "# Beta\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Changes.TotalChanges)
	assert.Empty(t, report.Changes.NewFiles)
	assert.Empty(t, report.Changes.ModifiedFiles)
	assert.Empty(t, report.Changes.DeletedFiles)
	assert.Equal(t, report.NodesBefore, report.NodesAfter)
}

func TestSyncModificationPreservesNodeID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "alpha.md", "# Alpha\n\nBody.\n")
	f.write(t, "beta.md", "# Beta\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)
	before, ok := f.graph.FindByPath("alpha.md")
	require.True(t, ok)

	f.write(t, "alpha.md", "# Alpha\n\nNow links [[Beta]].\n\nsupports:: [[Beta]]\n")
	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.md"}, report.Changes.ModifiedFiles)

	after, ok := f.graph.FindByPath("alpha.md")
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID)
	assert.NotEqual(t, before.ContentHash, after.ContentHash)

	out := f.graph.Outgoing(after.ID)
	require.Len(t, out, 2)
	rels := map[graph.RelationType]bool{}
	for _, e := range out {
		rels[e.Relation] = true
	}
	assert.True(t, rels[graph.RelationWikiLink])
	assert.True(t, rels[graph.RelationSupports])
}

func TestSyncDeletionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "alpha.md", "# Alpha\n\n[[Beta]]\n")
	f.write(t, "beta.md", "# Beta\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)
	beta, ok := f.graph.FindByPath("beta.md")
	require.True(t, ok)

	f.remove(t, "beta.md")
	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"beta.md"}, report.Changes.DeletedFiles)
	assert.Equal(t, 1, f.graph.NodeCount())
	assert.Equal(t, 0, f.graph.EdgeCount())

	_, exists := f.graph.GetNode(beta.ID)
	assert.False(t, exists)

	ids, err := f.vec.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	// The dangling link becomes unresolved again.
	assert.Equal(t, 1, report.LinksUnresolved)
}

func TestSyncForceRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "Research/alpha.md", "# Alpha\n\n[[Beta]]\n")
	f.write(t, "Research/beta.md", "# Beta\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	report, err := f.engine.Sync(ctx, true)
	require.NoError(t, err)

	assert.True(t, report.ForceRebuild)
	assert.Equal(t, 2, report.Changes.TotalChanges)
	assert.Len(t, report.Changes.NewFiles, 2)
	assert.Equal(t, 2, f.graph.NodeCount())
	assert.Equal(t, 1, f.graph.EdgeCount())
	assert.Contains(t, report.ActionsTaken, "force rebuild: cleared graph, hash cache, and vector index")

	ids, err := f.vec.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSyncIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.md", "# A\n\n[[B]]\nsupports:: [[B]]\n")
	f.write(t, "b.md", "# B\n\nparent:: [[A]]\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)
	nodes, edges := f.graph.NodeCount(), f.graph.EdgeCount()

	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Changes.TotalChanges)
	assert.Equal(t, nodes, f.graph.NodeCount())
	assert.Equal(t, edges, f.graph.EdgeCount())
}

func TestSyncHierarchyFromRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "project.md", "# Project\n\nchild:: [[Task]]\n")
	f.write(t, "task.md", "# Task\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	project, ok := f.graph.FindByPath("project.md")
	require.True(t, ok)
	task, ok := f.graph.FindByPath("task.md")
	require.True(t, ok)

	assert.Equal(t, project.ID, task.ParentID)
	assert.Equal(t, []string{task.ID}, project.ChildrenIDs)
}

func TestSyncManualEdgesSurvive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.md", "# A\n\nBody.\n")
	f.write(t, "b.md", "# B\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	a, _ := f.graph.FindByPath("a.md")
	b, _ := f.graph.FindByPath("b.md")
	require.NoError(t, f.graph.AddEdge(a.ID, b.ID, graph.RelationRelatedTo, 1,
		map[string]string{graph.MetaOrigin: graph.OriginManual}))

	f.write(t, "a.md", "# A\n\nEdited body.\n")
	_, err = f.engine.Sync(ctx, false)
	require.NoError(t, err)

	out := f.graph.Outgoing(a.ID)
	require.Len(t, out, 1)
	assert.Equal(t, graph.RelationRelatedTo, out[0].Relation)
}

func TestSyncOrphanedVectorCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.md", "# A\n\nBody.\n")

	// An entry left behind by an earlier crash has no matching node.
	require.NoError(t, f.vec.Upsert(ctx, "stale-id", "old content", nil))

	report, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Cleanup.OrphanedVectorsRemoved)
	ids, err := f.vec.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSyncSnapshotPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "a.md", "# A\n\n[[B]]\n")
	f.write(t, "b.md", "# B\n\nBody.\n")

	_, err := f.engine.Sync(ctx, false)
	require.NoError(t, err)

	restored := graph.New()
	require.NoError(t, restored.Load(f.engine.snapshotPath))
	assert.Equal(t, 2, restored.NodeCount())
	assert.Equal(t, 1, restored.EdgeCount())
}

func TestSyncEvents(t *testing.T) {
	var kinds []string
	f := newFixture(t)
	f.engine.events = func(kind string, payload any) {
		kinds = append(kinds, kind)
	}

	f.write(t, "a.md", "# A\n\nBody.\n")
	_, err := f.engine.Sync(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"sync.started", "sync.completed"}, kinds)
}

func TestSyncCancelled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# A\n\nBody.\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.Sync(ctx, false)
	require.Error(t, err)
	assert.Equal(t, PhaseAborted, report.Phase)
	assert.False(t, report.Completed)
}
