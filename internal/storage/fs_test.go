package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("---\nid: \"x\"\n---\n\nWorld\n")
	if err := s.Write("x.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("x.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("tech_notes/2025/a.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("tech_notes/2025/a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestExists(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("sub/here.json", []byte("{}"))

	ok, err := s.Exists("sub/here.json")
	if err != nil || !ok {
		t.Fatalf("Exists(here) = %v, %v", ok, err)
	}
	ok, err = s.Exists("sub/missing.json")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	ok, _ = s.Exists("sub")
	if ok {
		t.Error("directories should not count as files")
	}
	ok, err = s.DirExists("sub")
	if err != nil || !ok {
		t.Errorf("DirExists(sub) = %v, %v", ok, err)
	}
	ok, _ = s.DirExists("sub/here.json")
	if ok {
		t.Error("files should not count as directories")
	}
}

func TestReadDir(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("2025-01-02/b.json", []byte("b"))
	_ = s.Write("2025-01-01/a.json", []byte("a"))

	entries, err := s.ReadDir("")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "2025-01-01" || entries[1].Name() != "2025-01-02" {
		t.Errorf("entries not sorted by name: %v", entries)
	}

	missing, err := s.ReadDir("nope")
	if err != nil {
		t.Fatalf("ReadDir(missing): %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no entries, got %d", len(missing))
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("---\nid: \"x\"\n---\n\nbody"))
	b := Checksum([]byte("---\nid: \"x\"\n---\n\nbody!"))
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("different content should hash differently")
	}
	if a != Checksum([]byte("---\nid: \"x\"\n---\n\nbody")) {
		t.Error("checksum not stable")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, ".ctxvault-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "knowledge")
	if _, err := NewFS(dir); err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("root dir not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "ctxvault-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
