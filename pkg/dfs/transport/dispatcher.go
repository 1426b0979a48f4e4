package transport

import (
	"errors"
	"net"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
	"github.com/jabolina/go-dfs/pkg/dfs/wire"
)

// Handler processes one decoded inbound message. It may write a reply
// directly to conn (the same connection the message arrived on) before
// returning, or do nothing for fire-and-forget kinds such as
// NEW_FILE_AVAILABLE.
type Handler func(conn net.Conn, kind wire.MessageKind, body wire.WithRPCHeader) error

// HandlerTable maps a message kind to the handler responsible for it.
type HandlerTable map[wire.MessageKind]Handler

// Dispatcher decodes inbound messages off one connection and routes
// each one to its registered handler (C5).
//
// The source's one-message-per-handler discipline is about statelessness,
// not connection lifetime: each inbound message is decoded and routed
// independently, with no handler carrying state across messages. A
// connection accepted once and then abandoned after a single message
// would make the connection table's reuse of outbound sockets unsound,
// since a second call on a cached connection would have nobody reading
// the reply on the far end. Dispatch therefore loops for the life of
// the connection, reading and routing one message per iteration, until
// the peer closes it or a framing error occurs.
type Dispatcher struct {
	table  HandlerTable
	logger definition.Logger
}

// NewDispatcher builds a Dispatcher from table.
func NewDispatcher(table HandlerTable, logger definition.Logger) *Dispatcher {
	return &Dispatcher{table: table, logger: logger}
}

// Handle is the Acceptor's onConn callback: it decodes messages off conn
// until the connection breaks, dispatching each to its handler.
func (d *Dispatcher) Handle(conn net.Conn) {
	defer conn.Close()

	for {
		kind, body, err := wire.Decode(conn)
		if err != nil {
			if !errors.Is(err, wire.ErrConnectionBroken) && d.logger != nil {
				d.logger.Debugf("transport: decode failed, closing connection: %v", err)
			}
			return
		}

		handler, ok := d.table[kind]
		if !ok {
			if d.logger != nil {
				d.logger.Warnf("transport: no handler registered for kind %s", kind)
			}
			continue
		}
		if err := handler(conn, kind, body); err != nil {
			if d.logger != nil {
				d.logger.Errorf("transport: handler for %s failed: %v", kind, err)
			}
			return
		}
	}
}
