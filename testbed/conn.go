package testbed

import (
	"bufio"
	"net"
	"time"

	"github.com/rdpipe/redispipe/resp"
)

// Conn is a bare, non-pipelined RESP connection used by tests to drive a
// redis-server directly, bypassing the pool and pipeline under test.
type Conn struct {
	Addr string
	C    net.Conn
	R    *bufio.Reader
}

func encodeArgs(cmd string, args []string) []byte {
	items := make([]resp.Value, 0, len(args)+1)
	items = append(items, resp.BulkString([]byte(cmd)))
	for _, a := range args {
		items = append(items, resp.BulkString([]byte(a)))
	}
	return resp.Encode(nil, resp.Array(items))
}

func readValue(r *bufio.Reader) (resp.Value, error) {
	d := resp.NewDecoder()
	for {
		v, ok, err := d.Next()
		if err != nil {
			return resp.Value{}, err
		}
		if ok {
			return v, nil
		}
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if err != nil {
			return resp.Value{}, err
		}
		d.Feed(buf[:n])
	}
}

// Do sends cmd and args over a persistent connection, reconnecting once
// on failure, and returns the decoded response.
func (c *Conn) Do(cmd string, args ...string) (resp.Value, error) {
	try := 1
	if c.C != nil {
		try = 2
	}
	var lastErr error
	for i := 0; i < try; i++ {
		if c.C == nil {
			var err error
			c.C, err = net.DialTimeout("tcp", c.Addr, 100*time.Millisecond)
			if err != nil {
				lastErr = err
				continue
			}
			c.R = bufio.NewReader(c.C)
		}
		c.C.SetDeadline(time.Now().Add(time.Second))
		if _, err := c.C.Write(encodeArgs(cmd, args)); err != nil {
			lastErr = err
			c.C = nil
			continue
		}
		v, err := readValue(c.R)
		if err != nil {
			lastErr = err
			c.C = nil
			continue
		}
		return v, nil
	}
	return resp.Value{}, lastErr
}

// Do opens a one-shot connection to addr, issues cmd, and returns the
// decoded response.
func Do(addr string, cmd string, args ...string) (resp.Value, error) {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return resp.Value{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(time.Second))
	if _, err = conn.Write(encodeArgs(cmd, args)); err != nil {
		return resp.Value{}, err
	}
	return readValue(bufio.NewReader(conn))
}
