package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	if err := s.Save("B00TEST/chunks/100-200/extracted.txt", []byte("hello")); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := s.Load("B00TEST/chunks/100-200/extracted.txt")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", string(data))
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	if err := s.Save("book/file.txt", []byte("data")); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir(), "book"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".artifact-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestExists(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	if s.Exists("missing.txt") {
		t.Error("Exists should be false for missing file")
	}
	if err := s.Save("present.txt", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !s.Exists("present.txt") {
		t.Error("Exists should be true after save")
	}
	// A directory is not an artifact.
	if s.Exists("") {
		t.Error("Exists should be false for the data dir itself")
	}
}

func TestRemoveMissingIsNoError(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	if err := s.Remove("never-existed.txt"); err != nil {
		t.Errorf("remove missing: %v", err)
	}
}

func TestRemoveDir(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	if err := s.Save("book/audio/a/audio.mp3", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save("book/audio/b/audio.mp3", []byte("y")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.RemoveDir("book/audio/a"); err != nil {
		t.Fatalf("removedir: %v", err)
	}
	if s.Exists("book/audio/a/audio.mp3") {
		t.Error("removed dir contents still present")
	}
	if !s.Exists("book/audio/b/audio.mp3") {
		t.Error("sibling dir should be untouched")
	}
}
