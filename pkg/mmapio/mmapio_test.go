package mmapio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenReadsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	content := []byte("hello mapped world")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	if f.Size() != len(content) {
		t.Errorf("Size = %d, want %d", f.Size(), len(content))
	}
	if !bytes.Equal(f.Span(), content) {
		t.Errorf("Span = %q, want %q", f.Span(), content)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open of empty file failed: %v", err)
	}
	defer f.Close()
	if f.Size() != 0 {
		t.Errorf("Size = %d, want 0", f.Size())
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Open of missing file succeeded")
	}
}

func TestCreateWriteReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	content := []byte("persisted bytes")
	f, err := Create(path, len(content))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	copy(f.Span(), content)
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("file content = %q, want %q", got, content)
	}
}
