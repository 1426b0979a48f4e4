package store

import (
	"path/filepath"
	"testing"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
)

func newTestStore(t *testing.T, role Role) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := New(path, role, definition.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertPeerIsIdempotent(t *testing.T) {
	s := newTestStore(t, RoleTracker)

	for i := 0; i < 2; i++ {
		if err := s.UpsertPeer("127.0.0.1", "A", 11111, Online, 0, 0, 0, true); err != nil {
			t.Fatalf("UpsertPeer: %v", err)
		}
	}

	peers, err := s.AllPeers()
	if err != nil {
		t.Fatalf("AllPeers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(peers))
	}
}

func TestStore_UpsertFileThenGet(t *testing.T) {
	s := newTestStore(t, RoleTracker)

	if err := s.UpsertFileWait(FileRecord{Path: "file1.txt", Size: 5, GoldenChecksum: []byte("abc"), LatestVersion: 1}); err != nil {
		t.Fatalf("UpsertFileWait: %v", err)
	}

	rec, ok, err := s.GetFile("file1.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !ok {
		t.Fatalf("expected file to exist")
	}
	if rec.Size != 5 || rec.LatestVersion != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := s.UpsertFileWait(FileRecord{Path: "file1.txt", Size: 5, GoldenChecksum: []byte("xyz"), LatestVersion: 2}); err != nil {
		t.Fatalf("UpsertFileWait update: %v", err)
	}
	rec, ok, err = s.GetFile("file1.txt")
	if err != nil || !ok {
		t.Fatalf("GetFile after update: ok=%v err=%v", ok, err)
	}
	if rec.LatestVersion != 2 || string(rec.GoldenChecksum) != "xyz" {
		t.Fatalf("update did not collapse to same row: %+v", rec)
	}

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file total, got %d", len(files))
	}
}

func TestStore_HasUnreplicatedFiles(t *testing.T) {
	s := newTestStore(t, RoleTracker)

	if err := s.UpsertFileWait(FileRecord{Path: "solo.txt", Size: 1, LatestVersion: 1}); err != nil {
		t.Fatalf("UpsertFileWait: %v", err)
	}
	if err := s.UpsertPeer("127.0.0.1", "A", 11111, Online, 0, 0, 0, true); err != nil {
		t.Fatalf("UpsertPeer A: %v", err)
	}

	fileID, _, err := s.GetFileID("solo.txt")
	if err != nil {
		t.Fatalf("GetFileID: %v", err)
	}
	peerID, _, err := s.GetPeerID("127.0.0.1", 11111)
	if err != nil {
		t.Fatalf("GetPeerID: %v", err)
	}
	s.AddFilePeerEntry(fileID, peerID, []byte("csum"))
	s.Drain()

	has, err := s.HasUnreplicatedFiles("127.0.0.1", 11111)
	if err != nil {
		t.Fatalf("HasUnreplicatedFiles: %v", err)
	}
	if !has {
		t.Fatalf("expected solo.txt to be unreplicated")
	}

	if err := s.UpsertPeer("127.0.0.1", "B", 11112, Online, 0, 0, 0, true); err != nil {
		t.Fatalf("UpsertPeer B: %v", err)
	}
	peerBID, _, err := s.GetPeerID("127.0.0.1", 11112)
	if err != nil {
		t.Fatalf("GetPeerID B: %v", err)
	}
	s.AddFilePeerEntry(fileID, peerBID, []byte("csum"))
	s.Drain()

	has, err = s.HasUnreplicatedFiles("127.0.0.1", 11111)
	if err != nil {
		t.Fatalf("HasUnreplicatedFiles after replication: %v", err)
	}
	if has {
		t.Fatalf("expected solo.txt to be replicated once B holds it too")
	}
}
