package conductor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"holoport-stats/internal/codec"

	"github.com/gorilla/websocket"
)

var errChannelClosed = errors.New("channel closed")

// RetryPolicy bounds connection establishment. Attempt n (1-based)
// waits BaseDelay * Multiplier^(n-1) before the next one, capped at
// MaxDelay when MaxDelay is positive.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// NoRetry makes Dial give up after the first failure.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

type DialOptions struct {
	// Host defaults to localhost.
	Host             string
	Retry            RetryPolicy
	HandshakeTimeout time.Duration
	// RequestTimeout bounds each round trip; zero leaves only the
	// context deadline.
	RequestTimeout time.Duration
	Logger         *log.Logger

	// after waits between dial attempts; nil uses time.After.
	after func(time.Duration) <-chan time.Time
}

// Endpoint resolves the websocket URL of a conductor interface.
func Endpoint(host string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid conductor port %d", port)
	}
	if host == "" {
		host = "localhost"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}
	return u.String(), nil
}

// Channel is one connection to a conductor interface carrying strictly
// sequential request/response round trips.
type Channel struct {
	endpoint       string
	conn           *websocket.Conn
	requestTimeout time.Duration
	logger         *log.Logger

	mu     sync.Mutex
	nextID uint64
	broken error
}

// Dial connects to ws://<host>:<port>/, retrying failed attempts per
// opts.Retry. Exhausted retries yield a *ConnectionError.
func Dial(ctx context.Context, port int, opts DialOptions) (*Channel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	after := opts.after
	if after == nil {
		after = time.After
	}
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}

	endpoint, err := Endpoint(opts.Host, port)
	if err != nil {
		return nil, &ConnectionError{Endpoint: fmt.Sprintf("port %d", port), Cause: err}
	}

	policy := opts.Retry.normalized()
	dialer := websocket.Dialer{HandshakeTimeout: handshake}

	attempt := 0
	var lastErr error
	for attempt < policy.MaxAttempts {
		attempt++
		conn, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			return &Channel{
				endpoint:       endpoint,
				conn:           conn,
				requestTimeout: opts.RequestTimeout,
				logger:         logger,
			}, nil
		}
		lastErr = err
		if attempt >= policy.MaxAttempts || ctx.Err() != nil {
			break
		}

		wait := policy.Delay(attempt)
		logger.Printf("conductor: dial %s failed (attempt %d/%d): %v; retrying in %s", endpoint, attempt, policy.MaxAttempts, err, wait)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			return nil, &ConnectionError{Endpoint: endpoint, Attempts: attempt, Cause: lastErr}
		case <-after(wait):
		}
	}

	return nil, &ConnectionError{Endpoint: endpoint, Attempts: attempt, Cause: lastErr}
}

func (c *Channel) Endpoint() string {
	return c.endpoint
}

// Request sends req and blocks until its correlated response arrives.
// Error responses become *ProtocolError. A transport failure returns
// *ConnectionError and leaves the channel unusable.
func (c *Channel) Request(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return Response{}, &ConnectionError{Endpoint: c.endpoint, Cause: c.broken}
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	payload, err := codec.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %q request: %w", req.Type, err)
	}
	c.nextID++
	id := c.nextID
	frame, err := codec.Marshal(envelope{Type: frameRequest, ID: id, Data: payload})
	if err != nil {
		return Response{}, fmt.Errorf("encoding %q envelope: %w", req.Type, err)
	}

	deadline := c.deadline(ctx)
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return Response{}, c.fail(fmt.Errorf("writing %q request: %w", req.Type, err))
	}

	for {
		_ = c.conn.SetReadDeadline(deadline)
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			return Response{}, c.fail(fmt.Errorf("reading %q response: %w", req.Type, err))
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		var env envelope
		if err := codec.Unmarshal(message, &env); err != nil {
			return Response{}, &UnexpectedResponseError{Request: req.Type, Got: "undecodable frame"}
		}

		switch env.Type {
		case frameSignal:
			continue
		case frameResponse:
		default:
			return Response{}, &UnexpectedResponseError{Request: req.Type, Got: "frame type " + env.Type}
		}

		// Late answer to an earlier request that already failed.
		if env.ID < id {
			c.logger.Printf("conductor: dropping stale response id=%d (waiting for %d)", env.ID, id)
			continue
		}
		if env.ID != id {
			return Response{}, &UnexpectedResponseError{Request: req.Type, Got: fmt.Sprintf("response id %d, want %d", env.ID, id)}
		}

		var resp Response
		if err := codec.Unmarshal(env.Data, &resp); err != nil {
			return Response{}, &UnexpectedResponseError{Request: req.Type, Got: "undecodable payload"}
		}
		resp.Request = req.Type

		if resp.Type == responseError {
			var wire wireError
			if err := resp.decode(&wire); err != nil {
				return Response{}, &ProtocolError{Request: req.Type, Type: "unknown", Message: err.Error()}
			}
			return Response{}, &ProtocolError{Request: req.Type, Type: wire.Type, Message: wire.Message}
		}
		return resp, nil
	}
}

// Close shuts the connection down. Later requests fail with
// *ConnectionError.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil
	}
	c.broken = errChannelClosed
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Channel) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.requestTimeout > 0 {
		deadline = time.Now().Add(c.requestTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

// fail must be called with c.mu held.
func (c *Channel) fail(err error) error {
	c.broken = err
	_ = c.conn.Close()
	return &ConnectionError{Endpoint: c.endpoint, Cause: err}
}
