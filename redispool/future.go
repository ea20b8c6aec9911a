package redispool

import "github.com/rdpipe/redispipe/redisconn"

// ConnFuture is the one-shot result of a lease attempt (§4.5
// leaseConnection), resolved on the pool's event loop and observed by
// the calling goroutine.
type ConnFuture struct {
	ch   chan struct{}
	conn *redisconn.Connection
	err  error
}

func newConnFuture() *ConnFuture {
	return &ConnFuture{ch: make(chan struct{})}
}

func (f *ConnFuture) resolve(c *redisconn.Connection) {
	f.conn = c
	close(f.ch)
}

func (f *ConnFuture) reject(err error) {
	f.err = err
	close(f.ch)
}

// Wait blocks until the lease settles and returns its outcome.
func (f *ConnFuture) Wait() (*redisconn.Connection, error) {
	<-f.ch
	return f.conn, f.err
}

// Done exposes the settlement channel for select-based callers.
func (f *ConnFuture) Done() <-chan struct{} {
	return f.ch
}
