package transport

import (
	"context"
	"sync"
	"time"
)

// connTracker tracks accepted connections and when they were accepted so a
// server can retire connections older than its maximum age.
type connTracker struct {
	mu    sync.Mutex
	conns map[*FramedConn]time.Time
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[*FramedConn]time.Time)}
}

// Add registers a connection with the current time.
func (ct *connTracker) Add(conn *FramedConn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[conn] = time.Now()
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ct *connTracker) Remove(conn *FramedConn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, conn)
}

// CloseStale gracefully closes connections older than maxAge and returns
// how many it closed. Clients see a close frame and reconnect on their next
// channel.
func (ct *connTracker) CloseStale(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var stale []*FramedConn

	ct.mu.Lock()
	for conn, added := range ct.conns {
		if added.Before(cutoff) {
			stale = append(stale, conn)
			delete(ct.conns, conn)
		}
	}
	ct.mu.Unlock()

	closeAll(ctx, stale)
	return len(stale)
}

// CloseAll gracefully closes every tracked connection.
func (ct *connTracker) CloseAll(ctx context.Context) int {
	ct.mu.Lock()
	all := make([]*FramedConn, 0, len(ct.conns))
	for conn := range ct.conns {
		all = append(all, conn)
		delete(ct.conns, conn)
	}
	ct.mu.Unlock()

	closeAll(ctx, all)
	return len(all)
}

// Len returns the number of tracked connections.
func (ct *connTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}

func closeAll(ctx context.Context, conns []*FramedConn) {
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *FramedConn) {
			defer wg.Done()
			_ = c.Close(ctx)
		}(c)
	}
	wg.Wait()
}
