// Package hashtrack persists content fingerprints and note-path to node-id
// mappings, so sync cycles can skip unchanged files.
package hashtrack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/checksum"
)

// Entry is the cached fingerprint record for one identifier (usually a
// vault-relative file path). Metadata is a small diagnostic snapshot, not a
// correctness-critical value.
type Entry struct {
	Hash      string            `json:"hash"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Stats is the diagnostic summary returned by Tracker.Stats.
type Stats struct {
	TotalCachedItems int     `json:"total_cached_items"`
	TotalMappedNotes int     `json:"total_mapped_notes"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	CacheFile        string  `json:"cache_file"`
	LastUpdated      string  `json:"last_updated"`
}

// Tracker is the durable hash cache plus the note-path to node-id mapping.
// Every mutating operation flushes to disk before returning, so an
// acknowledged update survives a crash (the work it guards is idempotent and
// may simply be redone).
type Tracker struct {
	mu          sync.Mutex
	cachePath   string
	mappingPath string
	cache       map[string]Entry
	mapping     map[string]string // vault path -> node id

	// Hit-rate counters reset on process restart.
	checks uint64
	hits   uint64

	logger *slog.Logger
}

// Open loads (or initializes) a tracker whose state lives under stateDir as
// hash_cache.json and note_mapping.json. Corrupt or missing files degrade to
// empty state rather than failing startup.
func Open(stateDir string, logger *slog.Logger) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("hashtrack: create state dir: %w", err)
	}
	t := &Tracker{
		cachePath:   filepath.Join(stateDir, "hash_cache.json"),
		mappingPath: filepath.Join(stateDir, "note_mapping.json"),
		cache:       make(map[string]Entry),
		mapping:     make(map[string]string),
		logger:      logger,
	}
	t.loadFile(t.cachePath, &t.cache)
	t.loadFile(t.mappingPath, &t.mapping)
	return t, nil
}

func (t *Tracker) loadFile(path string, target any) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("hashtrack: load failed, starting empty",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.logger.Warn("hashtrack: corrupt state file, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Get returns the cached hash for an identifier, or "" and false when the
// identifier has never been processed.
func (t *Tracker) Get(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.cache[id]
	return e.Hash, ok
}

// Update upserts the hash entry for id and persists the cache before
// returning.
func (t *Tracker) Update(id, hash string, meta map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[id] = Entry{Hash: hash, UpdatedAt: time.Now().UTC(), Metadata: meta}
	return t.saveCacheLocked()
}

// HasChanged reports whether content differs from the cached fingerprint of
// id. An absent entry counts as changed.
func (t *Tracker) HasChanged(id string, content []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks++
	e, ok := t.cache[id]
	if !ok {
		return true
	}
	if checksum.Sum(content) != e.Hash {
		return true
	}
	t.hits++
	return false
}

// NodeID returns the graph node id mapped to a vault path.
func (t *Tracker) NodeID(path string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.mapping[path]
	return id, ok
}

// SetNoteMapping records the path to node-id correlation and persists it.
// At most one node id exists per path; a repeated call overwrites.
func (t *Tracker) SetNoteMapping(path, nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mapping[path] = nodeID
	return t.saveMappingLocked()
}

// RemoveNoteMapping deletes the mapping for a path. Removing an absent
// mapping is a no-op success.
func (t *Tracker) RemoveNoteMapping(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.mapping[path]; !ok {
		return nil
	}
	delete(t.mapping, path)
	return t.saveMappingLocked()
}

// Remove deletes the hash entry for id together with any mapping that
// references it (as path key or as node-id value).
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.cache, id)
	delete(t.mapping, id)
	for path, nodeID := range t.mapping {
		if nodeID == id {
			delete(t.mapping, path)
		}
	}

	if err := t.saveCacheLocked(); err != nil {
		return err
	}
	return t.saveMappingLocked()
}

// Mappings returns a copy of the current path to node-id map.
func (t *Tracker) Mappings() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.mapping))
	for k, v := range t.mapping {
		out[k] = v
	}
	return out
}

// Stats returns cache diagnostics. The hit rate counts HasChanged calls that
// found an unchanged fingerprint since process start.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rate float64
	if t.checks > 0 {
		rate = float64(t.hits) / float64(t.checks)
	}
	last := "never"
	var newest time.Time
	for _, e := range t.cache {
		if e.UpdatedAt.After(newest) {
			newest = e.UpdatedAt
			last = e.UpdatedAt.Format(time.RFC3339)
		}
	}
	return Stats{
		TotalCachedItems: len(t.cache),
		TotalMappedNotes: len(t.mapping),
		CacheHitRate:     rate,
		CacheFile:        t.cachePath,
		LastUpdated:      last,
	}
}

// Clear wipes all cache and mapping state and persists the empty stores.
// Destructive; callers must gate this behind explicit confirmation.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string]Entry)
	t.mapping = make(map[string]string)
	if err := t.saveCacheLocked(); err != nil {
		return err
	}
	return t.saveMappingLocked()
}

func (t *Tracker) saveCacheLocked() error {
	return writeJSONAtomic(t.cachePath, t.cache)
}

func (t *Tracker) saveMappingLocked() error {
	return writeJSONAtomic(t.mappingPath, t.mapping)
}

// writeJSONAtomic writes v as indented JSON via tmp file, fsync, rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("hashtrack: marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ansuz-state-*")
	if err != nil {
		return fmt.Errorf("hashtrack: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("hashtrack: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("hashtrack: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hashtrack: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("hashtrack: rename: %w", err)
	}
	success = true
	return nil
}
