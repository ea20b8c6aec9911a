// Package rediserr defines the error taxonomy surfaced by every layer of
// the pipeline: the wire codec, the per-connection command multiplexer,
// the connection facade, and the pool. Every error produced here is an
// *errorx.Error tagged with one of the types below, so callers branch on
// kind with errorx.IsOfType instead of matching on message text.
package rediserr

import (
	"fmt"

	"github.com/joomcode/errorx"
)

// Namespace roots every error type this module defines.
var Namespace = errorx.NewNamespace("redispipe")

// HardTrait marks errors that invalidate the connection they occurred on:
// protocol desync, transport failure, pool exhaustion, API misuse. An
// error without this trait is a regular Redis error reply, which fails
// only the one command that produced it (§7 error taxonomy).
var HardTrait = errorx.RegisterTrait("hard")

var (
	// Protocol covers malformed RESP input (§4.1 Malformed outcome).
	Protocol = Namespace.NewType("protocol", HardTrait)
	// Transport covers socket errors and unexpected closure.
	Transport = Namespace.NewType("transport", HardTrait)
	// Pool covers lease/acquisition failures that leave the pool usable.
	Pool = Namespace.NewType("pool", HardTrait)
	// Misuse covers synchronous, wire-untouched rejections (§4.3).
	Misuse = Namespace.NewType("misuse", HardTrait)
	// Server covers ordinary Redis error replies (§4.2 read path).
	Server = Namespace.NewType("server")
)

var (
	// TypeNoAvailableConnectionTargets: the address rotator has nothing to offer.
	TypeNoAvailableConnectionTargets = Pool.NewSubtype("no_available_connection_targets")
	// TypePoolClosed: a lease or send was attempted after Pool.Close.
	TypePoolClosed = Pool.NewSubtype("pool_closed")
	// TypeConnectionClosed: the connection is gone, gracefully or not.
	TypeConnectionClosed = Transport.NewSubtype("connection_closed")
	// TypeTimedOutAcquiringConnection: lease deadline elapsed before a connection appeared.
	TypeTimedOutAcquiringConnection = Pool.NewSubtype("timed_out_acquiring_connection")
	// TypeSubscriptionsNotAllowed: subscribe-family command sent on a connection not pinned for pub/sub.
	TypeSubscriptionsNotAllowed = Misuse.NewSubtype("subscriptions_not_allowed")
)

// Properties registered for structured introspection of errors. The
// constructors in this package do not attach them.
var (
	// EKAddress carries the network address a connection-level error occurred on.
	EKAddress = errorx.RegisterProperty("address")
	// EKCommand carries the command name a request-level error occurred on.
	EKCommand = errorx.RegisterProperty("command")
)

// NewProtocolError reports a malformed RESP value; the enclosing
// connection must transition to Errored (§4.1).
func NewProtocolError(format string, args ...interface{}) *errorx.Error {
	return Protocol.New(fmt.Sprintf(format, args...))
}

// NewTransportError wraps a socket-level error (read, write, or dial failure).
func NewTransportError(cause error) *errorx.Error {
	return Transport.Wrap(cause, "transport error")
}

// NewConnectionClosed reports that the connection is no longer usable,
// either because it was closed gracefully or because cause tore it down.
func NewConnectionClosed(cause error) *errorx.Error {
	if cause == nil {
		return TypeConnectionClosed.New("connection closed")
	}
	return TypeConnectionClosed.Wrap(cause, "connection closed")
}

// NewPoolClosed reports that the pool has been closed and refuses new work.
func NewPoolClosed() *errorx.Error {
	return TypePoolClosed.New("pool is closed")
}

// NewNoAvailableConnectionTargets reports an empty address rotator.
func NewNoAvailableConnectionTargets() *errorx.Error {
	return TypeNoAvailableConnectionTargets.New("no available connection targets")
}

// NewTimedOutAcquiringConnection reports a lease deadline expiring.
func NewTimedOutAcquiringConnection() *errorx.Error {
	return TypeTimedOutAcquiringConnection.New("timed out acquiring connection from pool")
}

// NewSubscriptionsNotAllowed reports a subscribe-family command issued on
// a connection that is not the pool's pinned pub/sub connection.
func NewSubscriptionsNotAllowed() *errorx.Error {
	return TypeSubscriptionsNotAllowed.New("subscriptions are not allowed on this connection")
}

// NewRedisError wraps a server error reply's text (§4.2 read path).
func NewRedisError(text string) *errorx.Error {
	return Server.New(text)
}

// IsHard reports whether err invalidates the connection it occurred on,
// as opposed to a plain Redis error reply that only fails one command.
func IsHard(err error) bool {
	return errorx.HasTrait(err, HardTrait)
}
