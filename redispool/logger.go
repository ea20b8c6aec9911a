package redispool

import "log"

// PoolLogKind identifies a pool-level lifecycle event, distinct from
// redisconn.LogKind which covers a single connection's own lifecycle.
type PoolLogKind int

const (
	LogActivated PoolLogKind = iota
	LogConnectionCreated
	LogConnectionCreateFailed
	LogConnectionReturned
	LogConnectionEvicted
	LogClosed
)

// Logger receives pool-level lifecycle events.
type Logger interface {
	Report(event PoolLogKind, v ...interface{})
}

type defaultLogger struct{}

func (defaultLogger) Report(event PoolLogKind, v ...interface{}) {
	switch event {
	case LogConnectionCreateFailed:
		log.Printf("redispool: connection attempt failed: %v", v)
	default:
		log.Printf("redispool: event %d: %v", event, v)
	}
}
