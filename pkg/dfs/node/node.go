// Package node implements the peer runtime (C6) and, composed on top of
// it, the tracker runtime (C7): the operations an interactive client or
// another node drives over the wire.
package node

import (
	"fmt"
	"net"
	"time"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/fsadapter"
	"github.com/jabolina/go-dfs/pkg/dfs/store"
	"github.com/jabolina/go-dfs/pkg/dfs/transport"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// DefaultPassword mirrors the teacher's hardcoded bootstrap credential,
// generalized into a configurable field below; it is kept only as the
// zero-value default for Config.Password.
const DefaultPassword = "12345"

// Config configures a single Node, whether running as a peer or the
// tracker.
type Config struct {
	Hostname string
	Port     int
	Name     string

	IsTracker bool

	// TrackerHost/TrackerPort address the tracker this peer registers
	// with. Unused when IsTracker is true.
	TrackerHost string
	TrackerPort int
	Password    string

	MaxFileSize     int64
	MaxFileSysSize  int64
	CurrFileSysSize int64

	StorageRoot string
	DBPath      string

	ReplicationLevel int
	DialTimeout      time.Duration
	CallTimeout      time.Duration
}

// Node is a single tracker or peer runtime: one listening socket, one
// metadata store, one local file store adapter, and one outbound
// connection table, all wired together through a handler table.
type Node struct {
	cfg Config
	log definition.Logger

	self    transport.PeerID
	tracker transport.PeerID

	store *store.Store
	fs    *fsadapter.FileStore

	dialer     *transport.Dialer
	acceptor   *transport.Acceptor
	dispatcher *transport.Dispatcher
	invoker    transport.Invoker

	// trackerExt is non-nil only when this Node is running as the
	// tracker; its handlers override/extend the peer handler set.
	trackerExt *TrackerExtensions
}

// New constructs a Node from cfg but does not yet bind a listening
// socket or register with the tracker; call Start for that.
func New(cfg Config, log definition.Logger) (*Node, error) {
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	if cfg.Name == "" {
		cfg.Name = "node"
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	fs, err := fsadapter.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("node: init file store: %w", err)
	}

	role := store.RolePeer
	if cfg.IsTracker {
		role = store.RoleTracker
	}
	st, err := store.New(cfg.DBPath, role, log.WithField("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("node: init metadata store: %w", err)
	}

	dialer := transport.NewDialer(cfg.DialTimeout)
	dialer.SetCallTimeout(cfg.CallTimeout)

	n := &Node{
		cfg:     cfg,
		log:     log.WithField("role", role.String()),
		self:    transport.PeerID{Host: cfg.Hostname, Port: cfg.Port},
		tracker: transport.PeerID{Host: cfg.TrackerHost, Port: cfg.TrackerPort},
		store:   st,
		fs:      fs,
		dialer:  dialer,
		invoker: transport.NewInvoker(),
	}
	if cfg.IsTracker {
		n.trackerExt = newTrackerExtensions(n)
	}
	return n, nil
}

// Start binds the listening socket, begins accepting connections, and,
// for a peer node, performs the initial Connect handshake with the
// tracker.
func (n *Node) Start() error {
	acceptor, err := transport.Listen(n.self.String(), n.log)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", n.self, err)
	}
	n.acceptor = acceptor
	n.dispatcher = transport.NewDispatcher(n.buildHandlerTable(), n.log)

	n.invoker.Spawn(func() { n.acceptor.Serve(n.dispatcher.Handle) })

	if n.cfg.IsTracker {
		// The tracker registers itself as the first peer, bypassing the
		// mutation queue since nothing may read before this completes.
		if err := n.store.UpsertPeer(n.self.Host, n.cfg.Name, n.self.Port, store.Online,
			n.cfg.MaxFileSize, n.cfg.MaxFileSysSize, n.cfg.CurrFileSysSize, true); err != nil {
			return fmt.Errorf("node: register tracker as peer: %w", err)
		}
		return nil
	}

	return n.Connect()
}

// Shutdown stops accepting new connections, waits for in-flight handlers
// to finish, closes every outbound connection, and closes the metadata
// store.
func (n *Node) Shutdown() error {
	if n.acceptor != nil {
		n.acceptor.Stop()
	}
	n.invoker.Stop()
	n.dialer.CloseAll()
	return n.store.Close()
}

// call issues an RPC to peer and decodes its reply, failing on protocol
// version mismatch before the caller ever sees the body.
func (n *Node) call(peer transport.PeerID, kind wire.MessageKind, body wire.WithRPCHeader) (wire.MessageKind, wire.WithRPCHeader, error) {
	replyKind, replyBody, err := n.dialer.Call(peer, kind, body)
	if err != nil {
		return 0, nil, err
	}
	if err := wire.CheckRPCHeader(replyBody.GetRPCHeader()); err != nil {
		return 0, nil, err
	}
	return replyKind, replyBody, nil
}

func (n *Node) header() wire.RPCHeader {
	return wire.RPCHeader{ProtocolVersion: wire.LatestProtocolVersion}
}

// sourceHost extracts the caller's IP from its TCP source address. The
// advertised port always comes from the message body instead, never
// from conn.RemoteAddr(), since a peer's listening port is almost never
// its ephemeral outbound source port.
func sourceHost(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return conn.RemoteAddr().String()
}
