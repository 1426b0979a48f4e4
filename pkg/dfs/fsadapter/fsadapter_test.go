package fsadapter

import (
	"bytes"
	"testing"
)

func TestFileStore_WriteReadChecksum(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := fs.WriteFile("file1.txt", 1, 0, []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := fs.ReadFile("file1.txt", 1, 0, -1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("got %q want %q", data, "hello")
	}

	sum1, err := fs.Checksum("file1.txt", 1)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}

	if err := fs.WriteFile("file1.txt", 1, 0, []byte("HELLO")); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}
	sum2, err := fs.Checksum("file1.txt", 1)
	if err != nil {
		t.Fatalf("Checksum 2: %v", err)
	}
	if bytes.Equal(sum1, sum2) {
		t.Fatalf("expected checksum to change after content changed")
	}
}

func TestFileStore_CopyVersionPreservesOriginal(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := fs.WriteFile("file1.txt", 1, 0, []byte("v1-bytes")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.CopyVersion("file1.txt", 1, 2); err != nil {
		t.Fatalf("CopyVersion: %v", err)
	}

	v1, err := fs.ReadFile("file1.txt", 1, 0, -1)
	if err != nil {
		t.Fatalf("ReadFile v1: %v", err)
	}
	v2, err := fs.ReadFile("file1.txt", 2, 0, -1)
	if err != nil {
		t.Fatalf("ReadFile v2: %v", err)
	}
	if !bytes.Equal(v1, v2) {
		t.Fatalf("expected v1 and v2 bytes to match right after archive")
	}
	if !fs.Exists("file1.txt", 1) || !fs.Exists("file1.txt", 2) {
		t.Fatalf("expected both versions to exist on disk")
	}
}

func TestFileStore_DeleteMissingIsNoop(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.DeleteFile("missing.txt", 1); err != nil {
		t.Fatalf("DeleteFile on missing: %v", err)
	}
}
