package redisconn

import (
	"net"
	"testing"
	"time"

	"github.com/rdpipe/redispipe/resp"
	"github.com/stretchr/testify/require"
)

// pipeConn returns a Connection backed by an in-process net.Pipe, and
// the peer end a test can use to play the role of the server.
func pipeConn(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	conn := wrap("test-addr", client, nil)
	t.Cleanup(func() { conn.closeSocket() })
	return conn, server
}

func TestSendReceivesMatchingResponse(t *testing.T) {
	conn, server := pipeConn(t)

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf)
		server.Write([]byte("+PONG\r\n"))
	}()

	v, err := conn.Send([]string{"PING"}).Wait()
	require.NoError(t, err)
	require.Equal(t, "PONG", v.Str)
}

func TestSendOrdersMultipleCommands(t *testing.T) {
	conn, server := pipeConn(t)

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf)
		server.Read(buf)
		server.Write([]byte("+PONG\r\n$2\r\nhi\r\n"))
	}()

	p1 := conn.Send([]string{"PING"})
	p2 := conn.Send([]string{"ECHO", "hi"})

	v1, err := p1.Wait()
	require.NoError(t, err)
	require.Equal(t, "PONG", v1.Str)

	v2, err := p2.Wait()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), v2.Bulk)
}

func TestSubscribeRejectedWithoutAllowSubscriptions(t *testing.T) {
	conn, _ := pipeConn(t)

	_, err := conn.Send([]string{"SUBSCRIBE", "ch"}).Wait()
	require.Error(t, err)
}

func TestSubscribeAllowedAfterSetAllowSubscriptions(t *testing.T) {
	conn, server := pipeConn(t)
	conn.SetAllowSubscriptions(true)

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf)
		server.Write([]byte("*3\r\n$9\r\nsubscribe\r\n$2\r\nch\r\n:1\r\n"))
	}()

	v, err := conn.Send([]string{"SUBSCRIBE", "ch"}).Wait()
	require.NoError(t, err)
	require.Equal(t, resp.KindArray, v.Kind)
}

func TestUnexpectedClosureInvokesHook(t *testing.T) {
	conn, server := pipeConn(t)

	fired := make(chan error, 1)
	conn.SetOnUnexpectedClosure(func(err error) {
		fired <- err
	})

	server.Close()

	select {
	case err := <-fired:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("onUnexpectedClosure was not invoked")
	}
}

func TestGracefulCloseDoesNotInvokeUnexpectedHook(t *testing.T) {
	conn, server := pipeConn(t)
	defer server.Close()

	fired := false
	conn.SetOnUnexpectedClosure(func(err error) {
		fired = true
	})

	<-conn.Close()
	require.False(t, fired)
}
