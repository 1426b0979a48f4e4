package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
)

// pollInterval mirrors the 0.5s select() timeout the acceptor loop polls
// on to notice a shutdown request without blocking forever in Accept.
const pollInterval = 500 * time.Millisecond

// Acceptor owns the listening socket (C4). It accepts connections and
// hands each one to a Dispatcher-supplied handler on its own goroutine,
// so a slow or stuck peer never blocks new connections.
type Acceptor struct {
	listener net.Listener
	logger   definition.Logger

	stopped  atomic.Bool
	wg       sync.WaitGroup
	onAccept func(net.Conn)
}

// Listen binds addr and returns an Acceptor ready to Serve.
func Listen(addr string, logger definition.Logger) (*Acceptor, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Acceptor{listener: l, logger: logger}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// Serve polls Accept with a short deadline so it can observe Stop
// without blocking indefinitely, handing every accepted connection to
// onConn on its own goroutine. Serve blocks until Stop is called.
func (a *Acceptor) Serve(onConn func(net.Conn)) {
	a.onAccept = onConn
	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for !a.stopped.Load() {
		if tl, ok := a.listener.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(pollInterval))
		}
		conn, err := a.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if a.stopped.Load() {
				return
			}
			if a.logger != nil {
				a.logger.Errorf("transport: accept failed: %v", err)
			}
			continue
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			onConn(conn)
		}()
	}
}

// Stop closes the listener and waits for in-flight connection handlers
// to finish.
func (a *Acceptor) Stop() {
	a.stopped.Store(true)
	a.listener.Close()
	a.wg.Wait()
}
