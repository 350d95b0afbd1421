package hashtrack

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/checksum"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	tr, err := Open(dir, logger)
	require.NoError(t, err)
	return tr, dir
}

func TestUpdateGet(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, ok := tr.Get("a.md")
	assert.False(t, ok)

	require.NoError(t, tr.Update("a.md", "abc123", map[string]string{"title": "A"}))
	h, ok := tr.Get("a.md")
	assert.True(t, ok)
	assert.Equal(t, "abc123", h)
}

func TestHasChanged(t *testing.T) {
	tr, _ := newTestTracker(t)
	content := []byte("hello")

	// Never seen: changed.
	assert.True(t, tr.HasChanged("a.md", content))

	require.NoError(t, tr.Update("a.md", checksum.Sum(content), nil))
	assert.False(t, tr.HasChanged("a.md", content))
	assert.True(t, tr.HasChanged("a.md", []byte("edited")))

	stats := tr.Stats()
	assert.Equal(t, 1, stats.TotalCachedItems)
	// 3 checks, 1 hit.
	assert.InDelta(t, 1.0/3.0, stats.CacheHitRate, 1e-9)
}

func TestNoteMapping(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, ok := tr.NodeID("ideas/foo.md")
	assert.False(t, ok)

	require.NoError(t, tr.SetNoteMapping("ideas/foo.md", "node-1"))
	id, ok := tr.NodeID("ideas/foo.md")
	assert.True(t, ok)
	assert.Equal(t, "node-1", id)

	// Overwrite keeps at most one id per path.
	require.NoError(t, tr.SetNoteMapping("ideas/foo.md", "node-2"))
	id, _ = tr.NodeID("ideas/foo.md")
	assert.Equal(t, "node-2", id)

	require.NoError(t, tr.RemoveNoteMapping("ideas/foo.md"))
	_, ok = tr.NodeID("ideas/foo.md")
	assert.False(t, ok)

	// Idempotent removal.
	require.NoError(t, tr.RemoveNoteMapping("ideas/foo.md"))
}

func TestRemoveDropsHashAndMappings(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.Update("ideas/foo.md", "h1", nil))
	require.NoError(t, tr.SetNoteMapping("ideas/foo.md", "node-1"))

	require.NoError(t, tr.Remove("ideas/foo.md"))
	_, ok := tr.Get("ideas/foo.md")
	assert.False(t, ok)
	_, ok = tr.NodeID("ideas/foo.md")
	assert.False(t, ok)

	// Removing by node id clears mappings pointing at it.
	require.NoError(t, tr.SetNoteMapping("a.md", "node-9"))
	require.NoError(t, tr.Remove("node-9"))
	_, ok = tr.NodeID("a.md")
	assert.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	tr, dir := newTestTracker(t)

	require.NoError(t, tr.Update("a.md", "hash-a", map[string]string{"title": "A"}))
	require.NoError(t, tr.SetNoteMapping("a.md", "node-a"))

	// A fresh tracker over the same state dir sees identical state.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	tr2, err := Open(dir, logger)
	require.NoError(t, err)

	h, ok := tr2.Get("a.md")
	assert.True(t, ok)
	assert.Equal(t, "hash-a", h)
	id, ok := tr2.NodeID("a.md")
	assert.True(t, ok)
	assert.Equal(t, "node-a", id)
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hash_cache.json"), []byte("{not json"), 0o644))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	tr, err := Open(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Stats().TotalCachedItems)
}

func TestClear(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Update("a.md", "h", nil))
	require.NoError(t, tr.SetNoteMapping("a.md", "n"))

	require.NoError(t, tr.Clear())
	stats := tr.Stats()
	assert.Equal(t, 0, stats.TotalCachedItems)
	assert.Equal(t, 0, stats.TotalMappedNotes)
}
