package redispool

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/efritz/glock"
	"github.com/jpillora/backoff"
	"github.com/rdpipe/redispipe/internal"
	"github.com/rdpipe/redispipe/rediserr"
	"github.com/rdpipe/redispipe/redisconn"
)

// Pool is an outer handle onto a size-bounded fleet of redisconn
// Connections. Every method hops onto the pool's own event-loop
// goroutine before touching state (§5 "the pool MUST hop to its loop
// before inspecting or mutating state"); callers on any goroutine may
// invoke it freely.
type Pool struct {
	tasks  chan func()
	state  *poolState
	closed chan struct{}
}

// leaseWaiter is a pending lease request queued because no connection
// was immediately available and the pool was at capacity (§4.5 step 2,
// "enqueue a waiter").
type leaseWaiter struct {
	future   *ConnFuture
	deadline time.Time
	timedOut bool
}

// poolState holds every piece of mutable pool state. It is touched only
// from the goroutine running Pool.run, so it needs no internal
// synchronization of its own. Pool is the outer handle and poolState the
// inner loop-owned state (§9 "split outer handle from inner loop-owned
// state"); the loop goroutine and the closures it runs still reference
// the Pool handle itself, and the loop goroutine does not exit on Close.
type poolState struct {
	cfg        Config
	rotator    *addressRotator
	clock      glock.Clock
	dispatcher *internal.Dispatcher

	activated bool
	closed    bool

	available []*redisconn.Connection
	leased    map[*redisconn.Connection]struct{}
	waiters   *list.List // of *leaseWaiter

	creating int // connection-factory attempts currently in flight

	pubsub        *redisconn.Connection
	pubsubCount   int
	pubsubPending bool          // an AcquirePubSub lease is in flight, claiming the pin
	pubsubWaiters []*ConnFuture // queued behind pubsubPending
}

// New constructs a Pool from cfg. The pool does not dial anything until
// Activate is called.
func New(cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger{}
	}
	clock := glock.NewRealClock()
	st := &poolState{
		cfg:        cfg,
		rotator:    newAddressRotator(cfg.InitialAddresses),
		clock:      clock,
		dispatcher: internal.NewDispatcher(64),
		leased:     make(map[*redisconn.Connection]struct{}),
		waiters:    list.New(),
	}
	p := &Pool{
		tasks:  make(chan func(), 256),
		state:  st,
		closed: make(chan struct{}),
	}
	go p.run()
	return p
}

// run is the pool's event loop: it serializes every state mutation
// through a single goroutine (§5 "single-threaded cooperative per event
// loop").
func (p *Pool) run() {
	for task := range p.tasks {
		task()
	}
}

// submit hops a task onto the event loop and blocks the caller until it
// has run, giving callers a simple synchronous-looking API while every
// mutation still happens on the loop goroutine.
func (p *Pool) submit(task func()) {
	done := make(chan struct{})
	p.tasks <- func() {
		task()
		close(done)
	}
	<-done
}

// Activate schedules creation of MinConnections idle connections. It is
// idempotent (§4.5 step 1).
func (p *Pool) Activate() {
	p.submit(func() {
		st := p.state
		if st.activated || st.closed {
			return
		}
		st.activated = true
		st.cfg.Logger.Report(LogActivated)
		for i := 0; i < st.cfg.MinConnections; i++ {
			p.startConnectionAttemptLocked(nil, time.Time{})
		}
	})
}

// LeaseConnection acquires one connection for the exclusive use of the
// caller until ReturnConnection is called, honoring deadline for the
// acquisition attempt (§4.5 step 2, §5 cancellation).
func (p *Pool) LeaseConnection(deadline time.Time) *ConnFuture {
	future := newConnFuture()
	p.submit(func() {
		p.leaseLocked(future, deadline)
	})
	return future
}

// leaseLocked runs on the event loop. It hands out an idle connection
// if one exists, starts a new one if the pool has room, or queues the
// request as a waiter.
func (p *Pool) leaseLocked(future *ConnFuture, deadline time.Time) {
	st := p.state
	if st.closed {
		future.reject(rediserr.NewPoolClosed())
		return
	}
	if n := len(st.available); n > 0 {
		conn := st.available[n-1]
		st.available = st.available[:n-1]
		st.leased[conn] = struct{}{}
		future.resolve(conn)
		return
	}
	if p.hasRoomForNewConnectionLocked() {
		p.startConnectionAttemptLocked(future, deadline)
		return
	}
	w := &leaseWaiter{future: future, deadline: deadline}
	st.waiters.PushBack(w)
	p.scheduleWaiterTimeoutLocked(w)
}

func (p *Pool) hasRoomForNewConnectionLocked() bool {
	st := p.state
	if st.cfg.MaxConnections.Leaky {
		return true
	}
	total := len(st.leased) + len(st.available) + st.creating
	return total < st.cfg.MaxConnections.Count
}

// scheduleWaiterTimeoutLocked arms a timer that fails w's future with
// TimedOutAcquiringConnection once its deadline passes, unless it is
// served first (§5 "lease acquisition honors a per-attempt deadline").
func (p *Pool) scheduleWaiterTimeoutLocked(w *leaseWaiter) {
	if w.deadline.IsZero() {
		return
	}
	d := time.Until(w.deadline)
	if d <= 0 {
		p.failWaiterLocked(w)
		return
	}
	timer := p.state.clock.After(d)
	go func() {
		<-timer
		p.submit(func() {
			p.failWaiterLocked(w)
		})
	}()
}

func (p *Pool) failWaiterLocked(w *leaseWaiter) {
	if w.timedOut {
		return
	}
	st := p.state
	queued := false
	for e := st.waiters.Front(); e != nil; e = e.Next() {
		if e.Value.(*leaseWaiter) == w {
			st.waiters.Remove(e)
			queued = true
			break
		}
	}
	if !queued {
		// Already served, or already rejected by Close.
		return
	}
	w.timedOut = true
	w.future.reject(rediserr.NewTimedOutAcquiringConnection())
}

// startConnectionAttemptLocked begins dialing the next rotator target
// off the event loop, retrying with exponential backoff on failure
// (§4.5 "Connection factory", §4.5 step 2), bounded by deadline — the
// caller's own lease deadline when one is driving this attempt, or the
// zero Time for background warm-up/replacement attempts nobody is
// waiting on (dialWithBackoff then falls back to the static
// ConnectionRetry.Timeout, if any). If future is non-nil it is
// resolved or rejected with the outcome; if nil, the new connection
// (on success) simply joins the idle pool, as happens for
// Activate-driven warm-up connections.
func (p *Pool) startConnectionAttemptLocked(future *ConnFuture, deadline time.Time) {
	st := p.state
	st.creating++
	st.dispatcher.Go(func() {
		conn, err := p.dialWithBackoff(deadline)
		p.submit(func() {
			p.finishConnectionAttemptLocked(conn, err, future)
		})
	})
}

func (p *Pool) finishConnectionAttemptLocked(conn *redisconn.Connection, err error, future *ConnFuture) {
	st := p.state
	st.creating--
	if err != nil {
		st.cfg.Logger.Report(LogConnectionCreateFailed, err)
		if future != nil {
			future.reject(err)
		}
		return
	}
	st.cfg.Logger.Report(LogConnectionCreated, conn.Addr())
	if st.closed {
		conn.Close()
		return
	}
	conn.SetOnUnexpectedClosure(func(cause error) {
		p.submit(func() { p.onConnectionLostLocked(conn, cause) })
	})
	if future != nil {
		st.leased[conn] = struct{}{}
		future.resolve(conn)
		return
	}
	p.handOutOrStoreLocked(conn)
}

// dialWithBackoff runs entirely off the event loop: it may block for
// arbitrarily long while retrying, which is exactly why it must not run
// on the loop goroutine itself. deadline, when non-zero, is the
// caller's own acquisition deadline (§4.5 step 2 "bounded by
// deadline") and takes precedence over the pool's static
// ConnectionRetry.Timeout, which only applies as a fallback bound for
// attempts nobody supplied a deadline for.
func (p *Pool) dialWithBackoff(deadline time.Time) (*redisconn.Connection, error) {
	st := p.state
	b := &backoff.Backoff{
		Min:    st.cfg.ConnectionRetry.Backoff.Initial,
		Max:    st.cfg.ConnectionRetry.Backoff.Max,
		Factor: st.cfg.ConnectionRetry.Backoff.Factor,
	}
	if deadline.IsZero() && st.cfg.ConnectionRetry.Timeout > 0 {
		deadline = time.Now().Add(st.cfg.ConnectionRetry.Timeout)
	}
	opts := redisconn.Options{
		Password:        st.cfg.Factory.Password,
		InitialDatabase: st.cfg.Factory.InitialDatabase,
		DialTimeout:     st.cfg.Factory.DialTimeout,
		Dialer:          st.cfg.Factory.Dialer,
		Logger:          st.cfg.Factory.Logger,
	}
	for {
		addr := st.rotator.nextTarget()
		if addr == "" {
			return nil, rediserr.NewNoAvailableConnectionTargets()
		}
		ctx := context.Background()
		var cancel context.CancelFunc
		if !deadline.IsZero() {
			ctx, cancel = context.WithDeadline(ctx, deadline)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		conn, err := redisconn.Dial(ctx, addr, opts)
		cancel()
		if err == nil {
			return conn, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, rediserr.NewTimedOutAcquiringConnection()
		}
		time.Sleep(b.Duration())
	}
}

// onConnectionLostLocked handles a connection that closed on its own
// (socket error, server-initiated close) rather than through
// ReturnConnection/Close. It removes the connection from whichever
// bookkeeping set currently holds it (idle, leased, or the pub/sub pin);
// if the pool is activated and now below its warm-connection floor, a
// replacement is started.
func (p *Pool) onConnectionLostLocked(conn *redisconn.Connection, cause error) {
	st := p.state
	st.cfg.Logger.Report(LogConnectionEvicted, conn.Addr(), cause)
	if st.cfg.OnUnexpectedClosure != nil {
		st.cfg.OnUnexpectedClosure(conn.Addr(), cause)
	}
	delete(st.leased, conn)
	for i, c := range st.available {
		if c == conn {
			st.available = append(st.available[:i], st.available[i+1:]...)
			break
		}
	}
	if conn == st.pubsub {
		st.pubsub = nil
		st.pubsubCount = 0
	}
	if st.closed {
		p.finishCloseIfDoneLocked()
		return
	}
	if st.activated && len(st.available)+len(st.leased)+st.creating < st.cfg.MinConnections {
		p.startConnectionAttemptLocked(nil, time.Time{})
	}
}

// ReturnConnection hands a leased connection back to the pool (§4.5 step
// 3). It is safe to call exactly once per successful lease; a second
// return for the same connection is a programming error the pool
// detects rather than silently double-counting (§5 "detect a
// return-after-close or a double-return").
func (p *Pool) ReturnConnection(conn *redisconn.Connection) {
	p.submit(func() {
		p.returnConnectionLocked(conn)
	})
}

func (p *Pool) returnConnectionLocked(conn *redisconn.Connection) {
	st := p.state
	if _, ok := st.leased[conn]; !ok {
		// A double-return or a return of a connection the pool never
		// handed out (possibly after Close already tore it down) is a
		// caller programming error, not a state the pool should quietly
		// absorb (§5 "detect a return-after-close or a double-return").
		panic(fmt.Sprintf("redispool: ReturnConnection called for %s, which is not currently leased (double-return or return-after-close)", conn.Addr()))
	}
	if conn == st.pubsub {
		// The pinned pub/sub connection never rejoins general
		// availability through a plain return while subscriptions are
		// active (§4.5 pub/sub pinning); only ReleasePubSub clears the
		// pin. Leave it in the leased set untouched.
		return
	}
	delete(st.leased, conn)
	st.cfg.Logger.Report(LogConnectionReturned, conn.Addr())
	p.returnLeasedConnectionLocked(conn)
}

// handOutOrStoreLocked gives conn directly to the oldest waiter if one
// is queued; otherwise it stores conn as idle, closing it instead under
// leaky overflow (§4.5 step 3, §9 Open Question on leaky eviction).
func (p *Pool) handOutOrStoreLocked(conn *redisconn.Connection) {
	st := p.state
	if e := st.waiters.Front(); e != nil {
		w := e.Value.(*leaseWaiter)
		st.waiters.Remove(e)
		if w.timedOut {
			p.handOutOrStoreLocked(conn)
			return
		}
		st.leased[conn] = struct{}{}
		w.future.resolve(conn)
		return
	}
	if len(st.available) >= st.cfg.MaxConnections.Count {
		conn.Close()
		return
	}
	st.available = append(st.available, conn)
}

// UpdateAddresses replaces the rotator's target list.
func (p *Pool) UpdateAddresses(addresses []string) {
	p.submit(func() {
		p.state.rotator.update(addresses)
	})
}

// Close marks the pool closed, refuses new leases, closes all idle
// connections, and resolves once every leased connection has been
// returned and closed (§4.5 step 4).
func (p *Pool) Close() <-chan struct{} {
	p.submit(func() {
		st := p.state
		if st.closed {
			return
		}
		st.closed = true
		st.cfg.Logger.Report(LogClosed)
		for _, conn := range st.available {
			conn.Close()
		}
		st.available = nil
		if st.pubsub != nil {
			delete(st.leased, st.pubsub)
			st.pubsub.Close()
			st.pubsub = nil
			st.pubsubCount = 0
		}
		for e := st.waiters.Front(); e != nil; e = e.Next() {
			w := e.Value.(*leaseWaiter)
			if !w.timedOut {
				w.future.reject(rediserr.NewPoolClosed())
			}
		}
		st.waiters.Init()
		p.finishCloseIfDoneLocked()
	})
	return p.closed
}

func (p *Pool) finishCloseIfDoneLocked() {
	st := p.state
	if !st.closed || len(st.leased) != 0 {
		return
	}
	select {
	case <-p.closed:
	default:
		close(p.closed)
		st.dispatcher.Close()
	}
}
