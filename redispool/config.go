package redispool

import (
	"context"
	"net"
	"time"

	"github.com/rdpipe/redispipe/redisconn"
)

// SizeMode selects how MaxConnections is enforced (§4.5, glossary
// "Leaky pool"). Strict caps total connections (leased + idle); Leaky
// caps only preserved idle connections, allowing leased connections to
// transiently exceed Count.
type SizeMode struct {
	Leaky bool
	Count int
}

// Strict returns a SizeMode that hard-caps total connections at n.
func Strict(n int) SizeMode { return SizeMode{Leaky: false, Count: n} }

// Leaky returns a SizeMode that caps only preserved idle connections at
// n, allowing leased connections to overflow transiently.
func Leaky(n int) SizeMode { return SizeMode{Leaky: true, Count: n} }

// Backoff configures the exponential delay between reconnection
// attempts: delay = Initial * Factor^attempt (§4.5 connectionRetry).
type Backoff struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// FactoryConfig parameterizes how the pool dials new connections
// (§4.5 factoryConfig).
type FactoryConfig struct {
	Password        string
	InitialDatabase int
	DialTimeout     time.Duration
	Dialer          func(ctx context.Context, network, addr string) (net.Conn, error)
	Logger          redisconn.Logger
}

// Config is the complete, immutable configuration a Pool is constructed
// from (§4.5 Configuration).
type Config struct {
	InitialAddresses []string
	MaxConnections   SizeMode
	MinConnections   int
	ConnectionRetry  struct {
		Timeout time.Duration
		Backoff Backoff
	}
	Factory FactoryConfig

	// OnUnexpectedClosure, if set, is invoked when a leased or idle
	// connection drops without a pool-initiated close.
	OnUnexpectedClosure func(addr string, err error)

	// Logger receives pool-level lifecycle events (§1: logging policy is
	// an external collaborator; this is the hook, not a sink).
	Logger Logger
}
