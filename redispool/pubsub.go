package redispool

import (
	"time"

	"github.com/rdpipe/redispipe/rediserr"
	"github.com/rdpipe/redispipe/redisconn"
)

// AcquirePubSub reserves the pool's dedicated pub/sub connection,
// leasing (an idle one, or a newly dialed one) and pinning a connection
// on the first call and reusing it on every
// subsequent call while any subscription remains outstanding (§4.5
// "Pub/sub pinning"). Each successful call increments the subscription
// count; the caller must balance it with exactly one later
// ReleasePubSub.
func (p *Pool) AcquirePubSub(deadline time.Time) *ConnFuture {
	future := newConnFuture()
	p.submit(func() {
		p.acquirePubSubLocked(future, deadline)
	})
	return future
}

func (p *Pool) acquirePubSubLocked(future *ConnFuture, deadline time.Time) {
	st := p.state
	if st.closed {
		future.reject(rediserr.NewPoolClosed())
		return
	}
	if st.pubsub != nil {
		st.pubsubCount++
		future.resolve(st.pubsub)
		return
	}
	if st.pubsubPending {
		// Another AcquirePubSub call already claimed the "first caller"
		// slot and is off-loop awaiting its lease; queue behind it
		// instead of independently leasing and pinning a second
		// connection (§8 property #6 requires exactly one pinned
		// connection at a time).
		st.pubsubWaiters = append(st.pubsubWaiters, future)
		return
	}
	// Claim the slot synchronously, in the very task that observed
	// st.pubsub == nil, before yielding to the async lease below.
	st.pubsubPending = true

	inner := newConnFuture()
	p.leaseLocked(inner, deadline)
	go func() {
		conn, err := inner.Wait()
		p.submit(func() {
			p.finishPubSubAcquireLocked(conn, err, future)
		})
	}()
}

// finishPubSubAcquireLocked completes the pending pub/sub pin claimed by
// acquirePubSubLocked, resolving both the original caller and every
// caller that queued behind it while the lease was in flight.
func (p *Pool) finishPubSubAcquireLocked(conn *redisconn.Connection, err error, future *ConnFuture) {
	st := p.state
	st.pubsubPending = false
	waiters := st.pubsubWaiters
	st.pubsubWaiters = nil

	if err != nil {
		future.reject(err)
		for _, w := range waiters {
			w.reject(err)
		}
		return
	}

	conn.SetAllowSubscriptions(true)
	st.pubsub = conn
	st.pubsubCount = 1 + len(waiters)
	future.resolve(conn)
	for _, w := range waiters {
		w.resolve(conn)
	}
}

// ReleasePubSub balances one AcquirePubSub call. When the subscription
// count drops to zero, the connection is unpinned (allowSubscriptions
// reset to false) and returned to general availability. Calling
// ReleasePubSub with a connection that is not the currently pinned
// pub/sub connection is a no-op for pinning purposes, but still returns
// the connection if it was leased — balancing the lease taken for an
// unsubscribe issued after the pin was already cleared elsewhere (§4.5
// "Unsubscribe on a connection that is NOT currently the pinned
// connection").
func (p *Pool) ReleasePubSub(conn *redisconn.Connection) {
	p.submit(func() {
		p.releasePubSubLocked(conn)
	})
}

func (p *Pool) releasePubSubLocked(conn *redisconn.Connection) {
	st := p.state
	if conn != st.pubsub {
		if _, leased := st.leased[conn]; leased {
			delete(st.leased, conn)
			p.returnLeasedConnectionLocked(conn)
		}
		return
	}

	if st.pubsubCount > 0 {
		st.pubsubCount--
	}
	if st.pubsubCount > 0 {
		return
	}

	conn.SetAllowSubscriptions(false)
	st.pubsub = nil
	delete(st.leased, conn)
	p.returnLeasedConnectionLocked(conn)
}

// returnLeasedConnectionLocked is the tail shared by ReturnConnection
// and pub/sub release once a connection has already been removed from
// the leased set: close it if the pool is shutting down, otherwise hand
// it to a waiter or park it idle.
func (p *Pool) returnLeasedConnectionLocked(conn *redisconn.Connection) {
	st := p.state
	if st.closed {
		conn.Close()
		p.finishCloseIfDoneLocked()
		return
	}
	p.handOutOrStoreLocked(conn)
}
