// Package store implements the durable metadata model shared by the
// tracker and the peer (C3): Files, Version, Peers, PeerFile,
// LocalPeerFiles and Exclusions, fed through a single-writer queue.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jabolina/go-dfs/pkg/dfs/definition"
)

// Role selects which schema variant a Store bootstraps.
type Role int

const (
	RolePeer Role = iota
	RoleTracker
)

func (r Role) String() string {
	if r == RoleTracker {
		return "tracker"
	}
	return "peer"
}

// Store is the single owner of the metadata database. All mutations are
// enqueued on an unbounded FIFO and consumed by exactly one writer
// goroutine; reads take the same store-wide lock for the duration of
// their query and, when they must observe preceding writes, drain the
// queue first.
type Store struct {
	db       *sql.DB
	role     Role
	log      definition.Logger
	queue    *unboundedQueue
	accessMu sync.Mutex
	writerWG sync.WaitGroup
}

// New opens (creating if necessary) the sqlite database at path,
// bootstraps its schema for role, and starts the single writer
// goroutine. Schema creation failure is fatal; it is returned here
// rather than swallowed because without it no other operation is safe.
func New(path string, role Role, log definition.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The writer goroutine is the only concurrent user of write
	// statements; a single connection avoids sqlite's "database is
	// locked" errors under concurrent access from Go's pool.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:    db,
		role:  role,
		log:   log,
		queue: newUnboundedQueue(),
	}

	if err := bootstrapSchema(s); err != nil {
		db.Close()
		return nil, err
	}

	s.writerWG.Add(1)
	go s.writer()

	return s, nil
}

// writer drains the mutation queue and commits to the store. It is a
// daemon: an individual mutation failure is logged and swallowed, never
// fatal to the writer, because metadata rows are recreatable from the
// tracker (spec.md §4.3 failure model).
func (s *Store) writer() {
	defer s.writerWG.Done()
	for {
		cmd, ok := s.queue.pop()
		if !ok {
			return
		}
		s.accessMu.Lock()
		if err := cmd.apply(s); err != nil {
			s.log.Errorf("store: mutation failed: %v", err)
		}
		s.accessMu.Unlock()
	}
}

// enqueue submits a mutation to the writer without waiting for it to
// commit.
func (s *Store) enqueue(c command) {
	s.queue.push(c)
}

// mutateBlocking bypasses the queue and applies c synchronously, used
// only for bootstrap (e.g. the tracker registering itself as a peer
// during Start).
func (s *Store) mutateBlocking(c command) error {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return c.apply(s)
}

// Drain blocks until every mutation enqueued before this call has been
// committed, establishing a happens-before relationship for a
// subsequent read.
func (s *Store) Drain() {
	b := &barrierCommand{done: make(chan struct{})}
	s.queue.push(b)
	<-b.done
}

// withReadLock runs fn holding the store-wide access lock, after first
// draining the queue so fn observes every preceding write.
func (s *Store) withReadLock(fn func() error) error {
	s.Drain()
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return fn()
}

// Close stops the writer goroutine and closes the underlying database.
func (s *Store) Close() error {
	s.queue.close()
	s.writerWG.Wait()
	return s.db.Close()
}
