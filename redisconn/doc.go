/*
Package redisconn implements a connection to a single Redis server.

Connection is a thin facade around one TCP socket and the pipeline
package's FIFO command/response matcher: Send enqueues a command and
returns a promise for its response; a dedicated goroutine reads the
socket and feeds decoded RESP values back into the pipeline in order.
Connection is safe for concurrent use and does no request retrying on
its own; reconnection and retry policy live one layer up, in redispool.
*/
package redisconn
