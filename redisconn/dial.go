package redisconn

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rdpipe/redispipe/rediserr"
	"github.com/rdpipe/redispipe/resp"
)

// Options configures a single Dial call: authentication, database
// selection, and the dialer/logger the pool's factory config supplies
// (§4.5 factoryConfig).
type Options struct {
	Password       string
	InitialDatabase int
	DialTimeout    time.Duration
	Logger         Logger
	Dialer         func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (o Options) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := o.Dialer
	if dialer == nil {
		d := net.Dialer{Timeout: o.DialTimeout}
		dialer = d.DialContext
	}
	return dialer(ctx, "tcp", addr)
}

// Dial opens a TCP connection to addr, performs the optional AUTH/SELECT
// handshake, and returns a live Connection with allowSubscriptions
// false and its read loop already running (§4.5 "Connection factory").
func Dial(ctx context.Context, addr string, opts Options) (*Connection, error) {
	if opts.Logger != nil {
		opts.Logger.Report(LogConnecting, nil, addr)
	}
	sock, err := opts.dial(ctx, addr)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Report(LogConnectFailed, nil, addr, err)
		}
		return nil, rediserr.NewTransportError(err)
	}

	conn := wrap(addr, sock, opts.Logger)

	if opts.Password != "" {
		if _, err := handshake(conn, "AUTH", opts.Password); err != nil {
			conn.closeSocket()
			return nil, err
		}
	}
	if opts.InitialDatabase != 0 {
		if _, err := handshake(conn, "SELECT", strconv.Itoa(opts.InitialDatabase)); err != nil {
			conn.closeSocket()
			return nil, err
		}
	}

	if opts.Logger != nil {
		opts.Logger.Report(LogConnected, conn, sock.LocalAddr().String(), sock.RemoteAddr().String())
	}
	return conn, nil
}

// handshake sends one command during Dial's setup phase and waits
// synchronously for its response, failing hard on a server error since
// a rejected AUTH/SELECT means the connection is unusable.
func handshake(conn *Connection, cmd string, arg string) (resp.Value, error) {
	v, err := conn.Send([]string{cmd, arg}).Wait()
	if err != nil {
		return resp.Value{}, err
	}
	return v, nil
}

