package redisconn

import "log"

// LogKind identifies a connection lifecycle event reported to a Logger.
// Concrete logging sinks are an external collaborator (§1 out of
// scope); this package only defines the event taxonomy and a minimal
// stderr-backed default.
type LogKind int

const (
	LogConnecting LogKind = iota
	LogConnected
	LogConnectFailed
	LogDisconnected
	LogContextClosed
	LogMAX
)

// Logger receives connection lifecycle events. conn is nil for
// LogConnecting and LogConnectFailed, which fire before a Connection
// exists; callers needing the address use v[0].
type Logger interface {
	Report(event LogKind, conn *Connection, v ...interface{})
}

type defaultLogger struct{}

func (d defaultLogger) Report(event LogKind, conn *Connection, v ...interface{}) {
	switch event {
	case LogConnecting:
		addr := v[0].(string)
		log.Printf("redis: connecting to %s", addr)
	case LogConnected:
		localAddr := v[0].(string)
		remoteAddr := v[1].(string)
		log.Printf("redis: connected to %s (local: %s, remote: %s)", conn.Addr(), localAddr, remoteAddr)
	case LogConnectFailed:
		addr := v[0].(string)
		err := v[1].(error)
		log.Printf("redis: connection to %s failed: %s", addr, err.Error())
	case LogDisconnected:
		err := v[0].(error)
		log.Printf("redis: connection to %s broken: %s", conn.Addr(), err.Error())
	case LogContextClosed:
		log.Printf("redis: connection to %s explicitly closed", conn.Addr())
	default:
		args := []interface{}{"redis: unexpected event:", event, conn}
		args = append(args, v...)
		log.Print(args...)
	}
}
