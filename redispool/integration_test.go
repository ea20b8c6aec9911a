package redispool_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/rdpipe/redispipe/redisconn"
	"github.com/rdpipe/redispipe/redispool"
	"github.com/rdpipe/redispipe/resp"
	"github.com/rdpipe/redispipe/testbed"
	"github.com/stretchr/testify/suite"
)

// IntegrationSuite drives a real spawned redis-server through the full
// resp/pipeline/redisconn/redispool stack, rather than the fake-dialer
// net.Pipe() servers the rest of this package's tests use.
type IntegrationSuite struct {
	suite.Suite
	server testbed.Server
}

func (s *IntegrationSuite) SetupSuite() {
	testbed.InitDir(".")
	s.server.Port = 45679
	s.Require().NoError(s.server.Start())
}

func (s *IntegrationSuite) TearDownSuite() {
	s.server.Stop()
	testbed.RmDir()
}

func TestIntegration(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) newPool() *redispool.Pool {
	cfg := redispool.Config{
		InitialAddresses: []string{s.server.Addr()},
		MaxConnections:   redispool.Strict(4),
		MinConnections:   1,
	}
	cfg.ConnectionRetry.Timeout = 2 * time.Second
	cfg.ConnectionRetry.Backoff = redispool.Backoff{Initial: 10 * time.Millisecond, Factor: 2, Max: 200 * time.Millisecond}
	p := redispool.New(cfg)
	p.Activate()
	return p
}

func (s *IntegrationSuite) TestSendAgainstRealServer() {
	p := s.newPool()
	defer func() { <-p.Close() }()

	deadline := time.Now().Add(time.Second)
	v, err := p.Send(deadline, "SET", "redispool-key", "hello")
	s.Require().NoError(err)
	s.Equal("OK", v.Str)

	v, err = p.Send(deadline, "GET", "redispool-key")
	s.Require().NoError(err)
	s.Equal([]byte("hello"), v.Bulk)
}

func (s *IntegrationSuite) TestWithConnectionSequencesCommandsOnOneConnection() {
	p := s.newPool()
	defer func() { <-p.Close() }()

	deadline := time.Now().Add(time.Second)
	result, err := redispool.WithConnection(p, deadline, func(conn *redisconn.Connection) (string, error) {
		if _, err := conn.Send([]string{"SET", "redispool-wc-key", "1"}).Wait(); err != nil {
			return "", err
		}
		v, err := conn.Send([]string{"INCR", "redispool-wc-key"}).Wait()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v.Int, 10), nil
	})
	s.Require().NoError(err)
	s.Equal("2", result)
}

func (s *IntegrationSuite) TestPubSubPinningAgainstRealServer() {
	p := s.newPool()
	defer func() { <-p.Close() }()

	deadline := time.Now().Add(time.Second)
	conn, err := p.AcquirePubSub(deadline).Wait()
	s.Require().NoError(err)
	s.True(conn.AllowSubscriptions())

	v, err := conn.Send([]string{"SUBSCRIBE", "redispool-integration-channel"}).Wait()
	s.Require().NoError(err)
	s.Equal(resp.KindArray, v.Kind)

	other, err := p.LeaseConnection(deadline).Wait()
	s.Require().NoError(err)
	s.False(other.AllowSubscriptions())
	p.ReturnConnection(other)

	p.ReleasePubSub(conn)
	s.False(conn.AllowSubscriptions(), "unpinned once the only subscription drops")
}
