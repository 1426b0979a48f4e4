package transport

import (
	"net"
	"testing"
	"time"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

func startEchoAcceptor(t *testing.T, notify chan<- string) (*Acceptor, PeerID) {
	t.Helper()
	logger := definition.NewDefaultLogger()
	acc, err := Listen("127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	table := HandlerTable{
		wire.ConnectRequest: func(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
			return wire.Encode(conn, wire.ConnectResponse, wire.ConnectResponseMsg{Successful: true})
		},
		wire.NewFileAvailable: func(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error {
			msg := body.(wire.NewFileAvailableMsg)
			notify <- msg.FileModel.Path
			return nil
		},
	}
	disp := NewDispatcher(table, logger)

	invoker := NewInvoker()
	invoker.Spawn(func() { acc.Serve(disp.Handle) })

	t.Cleanup(func() {
		acc.Stop()
		invoker.Stop()
	})

	addr := acc.Addr().(*net.TCPAddr)
	return acc, PeerID{Host: "127.0.0.1", Port: addr.Port}
}

func TestDialer_CallRoundTrip(t *testing.T) {
	notify := make(chan string, 1)
	_, peer := startEchoAcceptor(t, notify)

	dialer := NewDialer(2 * time.Second)
	t.Cleanup(dialer.CloseAll)

	kind, body, err := dialer.Call(peer, wire.ConnectRequest, wire.ConnectRequestMsg{Port: 9999})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if kind != wire.ConnectResponse {
		t.Fatalf("got kind %v want ConnectResponse", kind)
	}
	resp := body.(wire.ConnectResponseMsg)
	if !resp.Successful {
		t.Fatalf("expected successful response")
	}
}

func TestDialer_ReusesConnectionAcrossCalls(t *testing.T) {
	notify := make(chan string, 1)
	_, peer := startEchoAcceptor(t, notify)

	dialer := NewDialer(2 * time.Second)
	t.Cleanup(dialer.CloseAll)

	if _, _, err := dialer.Call(peer, wire.ConnectRequest, wire.ConnectRequestMsg{Port: 1}); err != nil {
		t.Fatalf("first Call: %v", err)
	}
	dialer.mu.Lock()
	first := dialer.conns[peer].conn
	dialer.mu.Unlock()

	if err := dialer.Send(peer, wire.NewFileAvailable, wire.NewFileAvailableMsg{FileModel: wire.FileModel{Path: "a.txt"}, Port: 1}); err != nil {
		t.Fatalf("Send on reused connection: %v", err)
	}
	dialer.mu.Lock()
	second := dialer.conns[peer].conn
	dialer.mu.Unlock()
	if first == nil || first != second {
		t.Fatalf("expected Send to reuse the connection opened by Call")
	}

	select {
	case path := <-notify:
		if path != "a.txt" {
			t.Fatalf("got %q want a.txt", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for second message on reused connection")
	}
}

func TestDialer_EvictsConnectionAfterFailure(t *testing.T) {
	logger := definition.NewDefaultLogger()
	acc, err := Listen("127.0.0.1:0", logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := acc.Addr().(*net.TCPAddr)
	peer := PeerID{Host: "127.0.0.1", Port: addr.Port}
	acc.Stop()

	dialer := NewDialer(200 * time.Millisecond)
	if _, _, err := dialer.Call(peer, wire.ConnectRequest, wire.ConnectRequestMsg{}); err == nil {
		t.Fatalf("expected dial against closed listener to fail")
	}
	dialer.mu.Lock()
	_, cached := dialer.conns[peer]
	dialer.mu.Unlock()
	if cached {
		t.Fatalf("expected failed dial to not leave a cached connection")
	}
}
