package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestWriteReadRoundTrip(t *testing.T) {
	v := newTestVault(t)

	content := []byte("---\ntitle: Hi\n---\nbody")
	if err := v.Write("ideas/hi.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := v.Read("ideas/hi.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Read("nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	v := newTestVault(t)
	if err := v.Delete("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListReturnsChecksums(t *testing.T) {
	v := newTestVault(t)

	if err := v.Write("a.md", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := v.Write("sub/b.md", []byte("beta")); err != nil {
		t.Fatal(err)
	}
	if err := v.Write("sub/ignored.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}

	metas, err := v.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(metas))
	}
	byPath := make(map[string]string)
	for _, m := range metas {
		byPath[m.Path] = m.Checksum
	}
	if byPath["a.md"] != checksum.Sum([]byte("alpha")) {
		t.Errorf("checksum for a.md mismatch")
	}
	if byPath["sub/b.md"] != checksum.Sum([]byte("beta")) {
		t.Errorf("checksum for sub/b.md mismatch")
	}
}

func TestTraversalRejected(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Read("../outside.md"); err == nil {
		t.Error("expected traversal error")
	}
	if err := v.Write("/abs.md", []byte("x")); err == nil {
		t.Error("expected absolute path error")
	}
}

func TestMove(t *testing.T) {
	v := newTestVault(t)
	if err := v.Write("old.md", []byte("content")); err != nil {
		t.Fatal(err)
	}
	if err := v.Move("old.md", "dir/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(v.Root(), "dir", "new.md")); err != nil {
		t.Errorf("moved file missing: %v", err)
	}
	if _, err := v.Read("old.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old path should be gone")
	}
}
