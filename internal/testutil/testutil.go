// Package testutil provides shared test helpers for setting up vaults and
// sync stacks.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/hashtrack"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/vecindex"
)

// Logger returns a structured logger that discards all output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewVault(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestTracker creates a hash tracker backed by a temporary state directory.
func TestTracker(t *testing.T) *hashtrack.Tracker {
	t.Helper()
	tracker, err := hashtrack.Open(t.TempDir(), Logger())
	if err != nil {
		t.Fatal(err)
	}
	return tracker
}

// TestService wires a complete in-memory stack: temporary vault, hash
// tracker, knowledge graph, memory vector index, sync engine, and the note
// service on top.
func TestService(t *testing.T) *noteservice.Service {
	t.Helper()
	logger := Logger()

	_, store := TestVault(t)
	stateDir := t.TempDir()
	tracker, err := hashtrack.Open(stateDir, logger)
	if err != nil {
		t.Fatal(err)
	}

	g := graph.New()
	vec := vecindex.NewMemory(vecindex.NewLocalEmbedder(0))
	snapshot := filepath.Join(stateDir, "graph_snapshot.json")
	engine := syncer.New(store, tracker, g, vec, snapshot, logger)

	return noteservice.NewService(store, g, tracker, engine, vec, snapshot)
}
