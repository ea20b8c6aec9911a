package redisconn

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/rdpipe/redispipe/pipeline"
	"github.com/rdpipe/redispipe/rediserr"
	"github.com/rdpipe/redispipe/resp"
)

// subscribeCommands lists the command names that switch a connection into
// pub/sub mode. Sending one on a connection not pinned for pub/sub would
// desync the wire protocol, so Connection rejects them synchronously
// (§4.3, the "Misuse" error kind of §7).
var subscribeCommands = map[string]bool{
	"SUBSCRIBE":    true,
	"UNSUBSCRIBE":  true,
	"PSUBSCRIBE":   true,
	"PUNSUBSCRIBE": true,
}

// Connection is a thin facade owning one socket and its Pipeline (§4.3).
// It is safe for concurrent use: Send may be called from any goroutine,
// and responses are delivered to the caller's own goroutine through the
// returned Promise.
type Connection struct {
	addr string
	sock net.Conn
	pipe *pipeline.Pipeline
	log  Logger

	allowSubscriptions atomic.Bool
	sendImmediately    atomic.Bool

	closeOnce      sync.Once
	closed         chan struct{}
	closeRequested atomic.Bool

	onUnexpectedClosure func(err error)
	unexpectedFired     atomic.Bool
}

// wrap constructs a Connection around an already-dialed socket and
// starts its read loop. Dial is the normal entry point; wrap exists so
// tests can inject a fake net.Conn.
func wrap(addr string, sock net.Conn, log Logger) *Connection {
	if log == nil {
		log = defaultLogger{}
	}
	c := &Connection{
		addr:   addr,
		sock:   sock,
		log:    log,
		closed: make(chan struct{}),
	}
	c.pipe = pipeline.New(c)
	go c.readLoop()
	return c
}

// Addr returns the remote address this connection was dialed to.
func (c *Connection) Addr() string {
	return c.addr
}

// AllowSubscriptions reports whether subscribe-family commands are
// currently permitted on this connection.
func (c *Connection) AllowSubscriptions() bool {
	return c.allowSubscriptions.Load()
}

// SetAllowSubscriptions flips whether subscribe-family commands are
// permitted. The pool calls this when pinning or releasing the
// pub/sub-reserved connection.
func (c *Connection) SetAllowSubscriptions(allow bool) {
	c.allowSubscriptions.Store(allow)
}

// SetSendImmediately records a flush hint. WriteCommand does not read
// it: every command is written to the socket as soon as it is
// enqueued, whatever the hint says, and writes are not coalesced.
func (c *Connection) SetSendImmediately(v bool) {
	c.sendImmediately.Store(v)
}

// SetOnUnexpectedClosure installs the hook fired exactly once if the
// socket closes while the connection was considered live, i.e. not via
// a caller-initiated Close (§4.3).
func (c *Connection) SetOnUnexpectedClosure(f func(err error)) {
	c.onUnexpectedClosure = f
}

// Closed returns a channel that closes once the connection has fully
// torn down, for callers that want to wait without a callback.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// Send encodes command as a RESP Array of BulkStrings and enqueues it on
// the pipeline, returning a Promise for the matching response (§4.3).
// Subscribe-family commands fail synchronously, without touching the
// wire, unless AllowSubscriptions is set.
func (c *Connection) Send(command []string) *pipeline.Promise {
	if len(command) > 0 && subscribeCommands[command[0]] && !c.AllowSubscriptions() {
		return failedPromise(rediserr.NewSubscriptionsNotAllowed())
	}
	items := make([]resp.Value, len(command))
	for i, a := range command {
		items[i] = resp.BulkString([]byte(a))
	}
	return c.pipe.Write(resp.Array(items))
}

// failedPromise returns a Promise already rejected with err, for
// synchronous-failure paths that must not touch the pipeline's queue.
func failedPromise(err error) *pipeline.Promise {
	w := discardWriter{}
	p := pipeline.New(w)
	p.Fail(err)
	return p.Write(resp.SimpleString(""))
}

type discardWriter struct{}

func (discardWriter) WriteCommand([]byte) error { return nil }

// WriteCommand implements pipeline.Writer by writing encoded directly to
// the socket.
func (c *Connection) WriteCommand(encoded []byte) error {
	_, err := c.sock.Write(encoded)
	return err
}

// Close triggers a graceful close (§4.2 graceful shutdown): no further
// writes are accepted, and the socket closes once all in-flight
// responses have been delivered. The returned channel closes once the
// socket has actually shut down.
func (c *Connection) Close() <-chan struct{} {
	c.closeRequested.Store(true)
	c.log.Report(LogContextClosed, c)
	c.pipe.Drain(c.closeSocket)
	return c.closed
}

// closeSocket tears down the underlying socket and signals Closed. It is
// idempotent so that both a graceful drain and a concurrent transport
// error can call it safely.
func (c *Connection) closeSocket() {
	c.closeOnce.Do(func() {
		c.sock.Close()
		close(c.closed)
	})
}

// readLoop decodes RESP values off the socket and hands them to the
// pipeline in order, until the socket errors or is closed (§4.2 read
// path, §4.2 inactive/error paths).
func (c *Connection) readLoop() {
	dec := resp.NewDecoder()
	buf := make([]byte, 16*1024)
	for {
		for {
			v, ok, err := dec.Next()
			if err != nil {
				c.fail(rediserr.NewProtocolError(err.Error()))
				return
			}
			if !ok {
				break
			}
			c.pipe.PushResponse(v)
		}
		n, err := c.sock.Read(buf)
		if err != nil {
			c.fail(rediserr.NewTransportError(err))
			return
		}
		dec.Feed(buf[:n])
	}
}

// fail transitions the pipeline to Errored, closes the socket, and, if
// the connection had not already been told to close gracefully, invokes
// the unexpected-closure hook exactly once (§4.2 error path, §4.3
// onUnexpectedClosure).
func (c *Connection) fail(err error) {
	c.pipe.Fail(err)
	c.closeSocket()
	if c.closeRequested.Load() {
		return
	}
	c.log.Report(LogDisconnected, c, err)
	if c.onUnexpectedClosure != nil && c.unexpectedFired.CompareAndSwap(false, true) {
		c.onUnexpectedClosure(err)
	}
}

// State exposes the pipeline's lifecycle state for diagnostics and pool
// bookkeeping.
func (c *Connection) State() pipeline.State {
	return c.pipe.State()
}
