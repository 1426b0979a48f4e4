package node

import (
	"bytes"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
	"go.uber.org/goleak"
)

// nextPort hands out distinct loopback ports across tests in this
// package so clusters never collide, mirroring the teacher's
// test.CreateCluster helper generating distinct partition names per
// call.
var portCounter int64 = 21000

func nextPort() int {
	return int(atomic.AddInt64(&portCounter, 1))
}

func newTestTracker(t *testing.T) *Node {
	t.Helper()
	port := nextPort()
	cfg := Config{
		Hostname: "127.0.0.1", Port: port, Name: "tracker", IsTracker: true,
		Password:         "shared-secret",
		MaxFileSize:      1 << 30,
		MaxFileSysSize:   1 << 30,
		ReplicationLevel: 10,
		StorageRoot:      filepath.Join(t.TempDir(), "tracker-store"),
		DBPath:           filepath.Join(t.TempDir(), "tracker.db"),
		DialTimeout:      2 * time.Second,
		CallTimeout:      2 * time.Second,
	}
	n, err := New(cfg, definition.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New tracker: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start tracker: %v", err)
	}
	t.Cleanup(func() { n.Shutdown() })
	return n
}

func newTestPeer(t *testing.T, tracker *Node, name string) *Node {
	t.Helper()
	port := nextPort()
	cfg := Config{
		Hostname: "127.0.0.1", Port: port, Name: name, IsTracker: false,
		TrackerHost: "127.0.0.1", TrackerPort: tracker.self.Port,
		Password:       "shared-secret",
		MaxFileSize:    1 << 20,
		MaxFileSysSize: 1 << 20,
		StorageRoot:    filepath.Join(t.TempDir(), name+"-store"),
		DBPath:         filepath.Join(t.TempDir(), name+".db"),
		DialTimeout:    2 * time.Second,
		CallTimeout:    2 * time.Second,
	}
	n, err := New(cfg, definition.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New peer %s: %v", name, err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start peer %s: %v", name, err)
	}
	t.Cleanup(func() { n.Shutdown() })
	return n
}

func TestNode_BootstrapAndConnect(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, goleak.IgnoreCurrent()) })

	tracker := newTestTracker(t)
	peerA := newTestPeer(t, tracker, "peerA")

	peers, err := peerA.getPeerList("", false)
	if err != nil {
		t.Fatalf("getPeerList: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected to see the tracker and peerA itself as peers, got %d", len(peers))
	}
}

func TestNode_WriteReplicatesToOtherPeer(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, goleak.IgnoreCurrent()) })

	tracker := newTestTracker(t)
	peerA := newTestPeer(t, tracker, "peerA")
	peerB := newTestPeer(t, tracker, "peerB")

	if err := peerA.Write("notes.txt", []byte("hello world"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		data, err := peerB.Read("notes.txt", 0, -1)
		if err == nil && bytes.Equal(data, []byte("hello world")) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("peerB never replicated notes.txt: last err=%v data=%q", err, data)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestNode_ArchiveBumpsVersionOnHolders(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, goleak.IgnoreCurrent()) })

	tracker := newTestTracker(t)
	peerA := newTestPeer(t, tracker, "peerA")

	if err := peerA.Write("doc.txt", []byte("v1"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tracker.store.Drain()

	archived, err := peerA.Archive("doc.txt")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !archived {
		t.Fatalf("expected archive to succeed")
	}

	rec, ok, err := peerA.store.GetFile("doc.txt")
	if err != nil || !ok {
		t.Fatalf("GetFile after archive: ok=%v err=%v", ok, err)
	}
	if rec.LatestVersion != 2 {
		t.Fatalf("expected local version to bump to 2, got %d", rec.LatestVersion)
	}
}

func TestNode_ConnectRejectsWrongPassword(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, goleak.IgnoreCurrent()) })

	tracker := newTestTracker(t)

	port := nextPort()
	cfg := Config{
		Hostname: "127.0.0.1", Port: port, Name: "intruder", IsTracker: false,
		TrackerHost: "127.0.0.1", TrackerPort: tracker.self.Port,
		Password:    "wrong-password",
		StorageRoot: filepath.Join(t.TempDir(), "intruder-store"),
		DBPath:      filepath.Join(t.TempDir(), "intruder.db"),
		DialTimeout: 2 * time.Second,
		CallTimeout: 2 * time.Second,
	}
	n, err := New(cfg, definition.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Shutdown()

	if err := n.Start(); err == nil {
		t.Fatalf("expected Start to fail with wrong password")
	}
}

func TestNode_DisconnectGateBlocksOnUnreplicatedFile(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, goleak.IgnoreCurrent()) })

	tracker := newTestTracker(t)
	peerA := newTestPeer(t, tracker, "peerA")

	if err := peerA.Write("solo.txt", []byte("only here"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tracker.store.Drain()

	unreplicated, err := tracker.store.HasUnreplicatedFiles("127.0.0.1", peerA.self.Port)
	if err != nil {
		t.Fatalf("HasUnreplicatedFiles: %v", err)
	}
	if !unreplicated {
		t.Fatalf("expected solo.txt to be unreplicated before a second peer exists")
	}

	_, body, err := peerA.call(peerA.tracker, wire.DisconnectRequest, wire.DisconnectRequestMsg{
		RPCHeader: peerA.header(), CheckForUnreplicated: true, Port: peerA.self.Port,
	})
	if err != nil {
		t.Fatalf("disconnect call: %v", err)
	}
	if !body.(wire.DisconnectResponseMsg).ShouldWait {
		t.Fatalf("expected ShouldWait=true while the file is unreplicated")
	}
}
