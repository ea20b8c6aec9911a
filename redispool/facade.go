package redispool

import (
	"time"

	"github.com/rdpipe/redispipe/redisconn"
	"github.com/rdpipe/redispipe/resp"
)

// Send leases a connection, issues command, returns the connection, and
// resolves with the response (§6 "Pool.send"). It is the common case
// for callers that don't need to pin a sequence of commands to one
// physical connection.
func (p *Pool) Send(deadline time.Time, command ...string) (resp.Value, error) {
	conn, err := p.LeaseConnection(deadline).Wait()
	if err != nil {
		return resp.Value{}, err
	}
	v, err := conn.Send(command).Wait()
	p.ReturnConnection(conn)
	return v, err
}

// WithConnection leases a connection, runs body with it, and guarantees
// the connection is returned exactly once when body returns — even on
// panic — regardless of how many commands body issues (§6
// "Pool.leaseConnection(body)", §5 "every command issued inside the
// closure runs on the same physical connection").
func WithConnection[T any](p *Pool, deadline time.Time, body func(*redisconn.Connection) (T, error)) (T, error) {
	conn, err := p.LeaseConnection(deadline).Wait()
	if err != nil {
		var zero T
		return zero, err
	}
	defer p.ReturnConnection(conn)
	return body(conn)
}
