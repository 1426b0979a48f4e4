// Package transport implements the connection table (C2), acceptor
// (C4) and message dispatcher (C5): the parts of the system that own
// sockets. No other package opens a raw net.Conn directly.
package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	commonlog "github.com/prometheus/common/log"

	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// PeerID is a peer's advertised identity, the primary key every other
// component uses to address it. It is never the ephemeral TCP source
// port of an inbound connection.
type PeerID struct {
	Host string
	Port int
}

func (p PeerID) String() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Dialer is the connection table (C2): it maps a peer identity to a
// reusable outbound connection, dialing lazily on first use. Concurrent
// calls to the same peer are serialized by a per-peer lock, since the
// wire codec is strictly synchronous and does not multiplex requests.
type Dialer struct {
	mu          sync.Mutex
	conns       map[PeerID]*peerConn
	dialTimeout time.Duration
	callTimeout time.Duration
}

// SetCallTimeout bounds how long Call waits for a reply on top of the
// dial itself; zero disables the deadline.
func (d *Dialer) SetCallTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callTimeout = timeout
}

type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewDialer returns a Dialer with the given per-dial timeout.
func NewDialer(dialTimeout time.Duration) *Dialer {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Dialer{conns: make(map[PeerID]*peerConn), dialTimeout: dialTimeout}
}

func (d *Dialer) getOrDial(peer PeerID) (*peerConn, error) {
	d.mu.Lock()
	pc, ok := d.conns[peer]
	if ok {
		d.mu.Unlock()
		return pc, nil
	}
	pc = &peerConn{}
	d.conns[peer] = pc
	d.mu.Unlock()

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.conn != nil {
		return pc, nil
	}
	conn, err := net.DialTimeout("tcp", peer.String(), d.dialTimeout)
	if err != nil {
		d.evict(peer)
		return nil, fmt.Errorf("transport: dial %s: %w", peer, err)
	}
	pc.conn = conn
	return pc, nil
}

func (d *Dialer) evict(peer PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, peer)
}

// Call writes a request to peer and blocks for its reply, on the same
// connection, serialized against any other caller addressing this peer.
// On any I/O failure the cached connection is evicted so the next send
// re-dials.
func (d *Dialer) Call(peer PeerID, kind wire.MessageKind, body wire.WithRPCHeader) (wire.MessageKind, wire.WithRPCHeader, error) {
	pc, err := d.getOrDial(peer)
	if err != nil {
		return 0, nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	conn := pc.conn
	if d.callTimeout > 0 {
		conn.SetDeadline(time.Now().Add(d.callTimeout))
		defer conn.SetDeadline(time.Time{})
	}

	if err := wire.Encode(pc.conn, kind, body); err != nil {
		d.closeAndEvict(peer, pc)
		return 0, nil, err
	}
	replyKind, replyBody, err := wire.Decode(pc.conn)
	if err != nil {
		d.closeAndEvict(peer, pc)
		return 0, nil, err
	}
	return replyKind, replyBody, nil
}

// Send writes a fire-and-forget message to peer without waiting for (or
// expecting) a reply, used for tracker/peer broadcasts such as
// NEW_FILE_AVAILABLE or MOVE.
func (d *Dialer) Send(peer PeerID, kind wire.MessageKind, body wire.WithRPCHeader) error {
	pc, err := d.getOrDial(peer)
	if err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := wire.Encode(pc.conn, kind, body); err != nil {
		d.closeAndEvict(peer, pc)
		return err
	}
	return nil
}

func (d *Dialer) closeAndEvict(peer PeerID, pc *peerConn) {
	commonlog.Errorf("transport: evicting connection to %s after I/O failure", peer)
	pc.conn.Close()
	pc.conn = nil
	d.evict(peer)
}

// CloseAll closes every cached outbound connection.
func (d *Dialer) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for peer, pc := range d.conns {
		pc.mu.Lock()
		if pc.conn != nil {
			pc.conn.Close()
		}
		pc.mu.Unlock()
		delete(d.conns, peer)
	}
}
