/*
Package redispipe is a Redis client core built around per-connection
command pipelining.

https://redis.io/topics/pipelining

Each Connection is driven by a single reader goroutine and a strict
FIFO response matcher, so commands sent on it concurrently share one
socket and are answered in order. A Pool manages a small, bounded set
of such connections and leases each one to a single caller at a time:
Pool.Send leases a connection for one command and returns it
afterwards, and Pool.LeaseConnection or WithConnection pins a sequence
of commands to one connection. Subscribe-family commands are accepted
only on the connection handed out by Pool.AcquirePubSub.

Structure

  - resp: the RESP wire codec — a resumable decoder and its inverse encoder.
  - pipeline: the per-connection FIFO command/response multiplexer and its
    Default/Draining/Errored lifecycle.
  - redisconn: Connection, a facade over one socket and its pipeline.
  - redispool: Pool, a size-bounded fleet of Connections with leasing,
    warm-connection maintenance, backoff reconnection, and pub/sub pinning.

Out of scope

Clustering, sharding, and sentinel failover are not implemented here;
this package manages one fleet of connections against one logical
server (or a fixed address list behind a load balancer). Transaction
semantics beyond passing MULTI/EXEC through as ordinary commands, and
any metrics/logging policy beyond the Logger hooks each package
exposes, are left to the caller.
*/
package redispipe
