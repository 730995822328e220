package conductor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"holoport-stats/internal/conductor/conductortest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFake(t *testing.T, srv *conductortest.Server) *Channel {
	t.Helper()
	ch, err := Dial(context.Background(), srv.Port(), DialOptions{
		Host:           srv.Host(),
		Retry:          NoRetry,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ws://%s:%d/", srv.Host(), srv.Port()), ch.Endpoint())
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestEndpoint(t *testing.T) {
	got, err := Endpoint("", 4444)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:4444/", got)

	got, err = Endpoint("127.0.0.1", 42233)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:42233/", got)

	_, err = Endpoint("localhost", 0)
	assert.Error(t, err)
	_, err = Endpoint("localhost", 65536)
	assert.Error(t, err)
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDialExhaustsRetriesOnClosedPort(t *testing.T) {
	port := conductortest.ClosedPort(t)

	var waits []time.Duration
	immediate := func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		c := make(chan time.Time, 1)
		c <- time.Time{}
		return c
	}

	start := time.Now()
	_, err := Dial(context.Background(), port, DialOptions{
		Host:  "127.0.0.1",
		Retry: RetryPolicy{MaxAttempts: 4, BaseDelay: time.Hour, Multiplier: 2},
		after: immediate,
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %T: %v", err, err)
	assert.Equal(t, 4, connErr.Attempts)
	assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour, 4 * time.Hour}, waits)
}

func TestDialZeroAttemptsStillTriesOnce(t *testing.T) {
	port := conductortest.ClosedPort(t)

	_, err := Dial(context.Background(), port, DialOptions{Host: "127.0.0.1"})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, 1, connErr.Attempts)
}

func TestDialStopsWhenContextCancelled(t *testing.T) {
	port := conductortest.ClosedPort(t)
	ctx, cancel := context.WithCancel(context.Background())

	never := func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}
	_, err := Dial(ctx, port, DialOptions{
		Host:  "127.0.0.1",
		Retry: RetryPolicy{MaxAttempts: 100, BaseDelay: time.Second, Multiplier: 2},
		after: never,
	})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, 1, connErr.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestRoundTrip(t *testing.T) {
	srv := conductortest.New(t, func(req conductortest.Request) conductortest.Reply {
		var args map[string]any
		_ = req.Decode(&args)
		return conductortest.OK("echoed", args)
	})
	ch := dialFake(t, srv)

	for i := 0; i < 3; i++ {
		resp, err := ch.Request(context.Background(), Request{Type: "echo", Data: map[string]any{"n": i}})
		require.NoError(t, err)
		assert.Equal(t, "echoed", resp.Type)
		assert.Equal(t, "echo", resp.Request)

		var got map[string]any
		require.NoError(t, resp.decode(&got))
		assert.EqualValues(t, i, got["n"])
	}
	assert.Len(t, srv.Requests(), 3)
}

func TestRequestSkipsSignals(t *testing.T) {
	srv := conductortest.New(t, func(conductortest.Request) conductortest.Reply {
		reply := conductortest.OK("pong", nil)
		reply.SignalFirst = true
		return reply
	})
	ch := dialFake(t, srv)

	resp, err := ch.Request(context.Background(), Request{Type: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Type)
}

func TestRequestProtocolError(t *testing.T) {
	srv := conductortest.New(t, func(conductortest.Request) conductortest.Reply {
		return conductortest.Fail("internal_error", "cell missing")
	})
	ch := dialFake(t, srv)

	_, err := ch.Request(context.Background(), Request{Type: "list_apps"})

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr), "got %T", err)
	assert.Equal(t, "internal_error", protoErr.Type)
	assert.Equal(t, "cell missing", protoErr.Message)
	assert.Equal(t, "list_apps", protoErr.Request)

	// A protocol error leaves the channel usable.
	_, err = ch.Request(context.Background(), Request{Type: "list_apps"})
	require.True(t, errors.As(err, &protoErr))
}

func TestRequestMismatchedID(t *testing.T) {
	srv := conductortest.New(t, func(conductortest.Request) conductortest.Reply {
		reply := conductortest.OK("pong", nil)
		reply.ID = 99
		return reply
	})
	ch := dialFake(t, srv)

	_, err := ch.Request(context.Background(), Request{Type: "ping"})

	var unexpected *UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected), "got %T", err)
	assert.Contains(t, unexpected.Got, "response id 99")
}

func TestDroppedConnectionPoisonsChannel(t *testing.T) {
	srv := conductortest.New(t, func(conductortest.Request) conductortest.Reply {
		return conductortest.Reply{Drop: true}
	})
	ch := dialFake(t, srv)

	_, err := ch.Request(context.Background(), Request{Type: "ping"})
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %T", err)

	_, err = ch.Request(context.Background(), Request{Type: "ping"})
	require.True(t, errors.As(err, &connErr), "got %T", err)
	assert.Len(t, srv.Requests(), 1, "poisoned channel must not write again")
}

func TestRequestAfterClose(t *testing.T) {
	srv := conductortest.New(t, func(conductortest.Request) conductortest.Reply {
		return conductortest.OK("pong", nil)
	})
	ch := dialFake(t, srv)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	_, err := ch.Request(context.Background(), Request{Type: "ping"})
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.ErrorIs(t, err, errChannelClosed)
}
