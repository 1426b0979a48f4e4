package transport

import "sync"

// Invoker spawns and tracks long-running goroutines (a node runs its
// acceptor loop through it), so a node can wait for them to unwind on
// Stop. Per-connection handlers are tracked by the Acceptor itself.
type Invoker interface {
	Spawn(f func())
	Stop()
}

// WaitGroupInvoker is the production Invoker: every Spawn is tracked by
// a sync.WaitGroup, and Stop blocks until they have all returned.
type WaitGroupInvoker struct {
	group sync.WaitGroup
}

// NewInvoker returns a ready-to-use WaitGroupInvoker.
func NewInvoker() Invoker {
	return &WaitGroupInvoker{}
}

// Spawn runs f on its own goroutine, tracked for Stop.
func (i *WaitGroupInvoker) Spawn(f func()) {
	i.group.Add(1)
	go func() {
		defer i.group.Done()
		f()
	}()
}

// Stop blocks until every goroutine started by Spawn has returned.
func (i *WaitGroupInvoker) Stop() {
	i.group.Wait()
}
