package redispool

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rdpipe/redispipe/redisconn"
	"github.com/stretchr/testify/require"
)

// fakeDialer returns one end of an in-memory pipe and keeps a goroutine
// on the other end replying "+OK\r\n" to every command it receives, so
// tests can exercise pool plumbing without a real redis-server.
func fakeDialer(t *testing.T) func(ctx context.Context, network, addr string) (net.Conn, error) {
	t.Helper()
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, 4096)
			for {
				_, err := server.Read(buf)
				if err != nil {
					return
				}
				if _, err := server.Write([]byte("+OK\r\n")); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

func testConfig(t *testing.T, maxMode SizeMode) Config {
	var cfg Config
	cfg.InitialAddresses = []string{"fake:6379"}
	cfg.MaxConnections = maxMode
	cfg.MinConnections = 0
	cfg.ConnectionRetry.Timeout = 2 * time.Second
	cfg.ConnectionRetry.Backoff = Backoff{Initial: time.Millisecond, Factor: 2, Max: 10 * time.Millisecond}
	cfg.Factory.Dialer = fakeDialer(t)
	return cfg
}

func TestPoolLeaseAndReturn(t *testing.T) {
	p := New(testConfig(t, Strict(2)))
	defer p.Close()

	conn, err := p.LeaseConnection(time.Now().Add(time.Second)).Wait()
	require.NoError(t, err)
	require.NotNil(t, conn)

	p.ReturnConnection(conn)

	conn2, err := p.LeaseConnection(time.Now().Add(time.Second)).Wait()
	require.NoError(t, err)
	require.Same(t, conn, conn2, "the returned connection should be reused")
}

func TestPoolExhaustionStrict(t *testing.T) {
	p := New(testConfig(t, Strict(2)))
	defer p.Close()

	deadline := time.Now().Add(2 * time.Second)
	c1, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	c2, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)

	third := p.LeaseConnection(deadline)
	select {
	case <-third.Done():
		t.Fatal("third lease resolved before any connection was returned")
	case <-time.After(50 * time.Millisecond):
	}

	p.ReturnConnection(c1)

	conn3, err := third.Wait()
	require.NoError(t, err)
	require.Same(t, c1, conn3)

	_ = c2
}

func TestLeaseTimesOutWhenPoolExhausted(t *testing.T) {
	p := New(testConfig(t, Strict(1)))
	defer p.Close()

	_, err := p.LeaseConnection(time.Now().Add(time.Second)).Wait()
	require.NoError(t, err)

	_, err = p.LeaseConnection(time.Now().Add(30 * time.Millisecond)).Wait()
	require.Error(t, err)
}

// TestLeaseHonorsCallerDeadlineWhenDialingFreshConnection guards against
// dialWithBackoff bounding itself by the pool's static
// ConnectionRetry.Timeout instead of the deadline LeaseConnection's
// caller actually supplied: with a large static timeout and a small
// caller deadline, the lease must fail close to the caller deadline,
// not the static one.
func TestLeaseHonorsCallerDeadlineWhenDialingFreshConnection(t *testing.T) {
	cfg := testConfig(t, Strict(2))
	cfg.ConnectionRetry.Timeout = 10 * time.Second
	cfg.Factory.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	p := New(cfg)
	defer p.Close()

	start := time.Now()
	_, err := p.LeaseConnection(time.Now().Add(50 * time.Millisecond)).Wait()
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Less(t, elapsed, 2*time.Second,
		"lease should fail near the caller's deadline, not the pool's static ConnectionRetry.Timeout")
}

func TestLeakyPoolAllowsTransientOverflow(t *testing.T) {
	p := New(testConfig(t, Leaky(1)))
	defer p.Close()

	deadline := time.Now().Add(time.Second)
	c1, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	c2, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	require.NotSame(t, c1, c2)

	p.ReturnConnection(c1)
	p.ReturnConnection(c2)
}

func TestPubSubExclusivity(t *testing.T) {
	p := New(testConfig(t, Strict(3)))
	defer p.Close()

	deadline := time.Now().Add(time.Second)
	conn, err := p.AcquirePubSub(deadline).Wait()
	require.NoError(t, err)
	require.True(t, conn.AllowSubscriptions())

	other, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	require.False(t, other.AllowSubscriptions())
	p.ReturnConnection(other)

	conn2, err := p.AcquirePubSub(deadline).Wait()
	require.NoError(t, err)
	require.Same(t, conn, conn2, "a second subscribe reuses the pinned connection")

	p.ReleasePubSub(conn)
	require.True(t, conn.AllowSubscriptions(), "still pinned: one acquisition remains outstanding")

	p.ReleasePubSub(conn2)

	leasedAgain, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	require.Same(t, conn, leasedAgain, "unpinned connection rejoins general availability")
	require.False(t, leasedAgain.AllowSubscriptions())
}

// TestConcurrentAcquirePubSubPinsExactlyOneConnection guards against the
// race where two AcquirePubSub calls both observe an unset pin and each
// independently lease and pin their own connection: every concurrent
// caller must end up sharing the single pinned connection (§8 property
// #6).
func TestConcurrentAcquirePubSubPinsExactlyOneConnection(t *testing.T) {
	p := New(testConfig(t, Strict(8)))
	defer p.Close()

	const callers = 6
	deadline := time.Now().Add(2 * time.Second)
	results := make(chan *redisconn.Connection, callers)
	for i := 0; i < callers; i++ {
		go func() {
			conn, err := p.AcquirePubSub(deadline).Wait()
			require.NoError(t, err)
			results <- conn
		}()
	}

	var first *redisconn.Connection
	for i := 0; i < callers; i++ {
		conn := <-results
		if first == nil {
			first = conn
		} else {
			require.Same(t, first, conn, "every concurrent AcquirePubSub call must pin the same connection")
		}
	}

	other, err := p.LeaseConnection(deadline).Wait()
	require.NoError(t, err)
	require.False(t, other.AllowSubscriptions(), "no connection besides the pinned one may allow subscriptions")
	p.ReturnConnection(other)

	for i := 0; i < callers; i++ {
		p.ReleasePubSub(first)
	}
	require.False(t, first.AllowSubscriptions())
}

func TestPoolCloseWaitsForLeasedConnections(t *testing.T) {
	p := New(testConfig(t, Strict(1)))

	conn, err := p.LeaseConnection(time.Now().Add(time.Second)).Wait()
	require.NoError(t, err)

	closeDone := p.Close()
	select {
	case <-closeDone:
		t.Fatal("close resolved before the leased connection was returned")
	case <-time.After(30 * time.Millisecond):
	}

	p.ReturnConnection(conn)

	select {
	case <-closeDone:
	case <-time.After(time.Second):
		t.Fatal("close did not resolve after the leased connection was returned")
	}
}

func TestCloseRejectsNewLeases(t *testing.T) {
	p := New(testConfig(t, Strict(2)))
	<-p.Close()

	_, err := p.LeaseConnection(time.Now().Add(time.Second)).Wait()
	require.Error(t, err)
}
