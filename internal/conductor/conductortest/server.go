// Package conductortest runs a fake conductor interface over a real
// websocket so clients can be exercised end to end in tests.
package conductortest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"holoport-stats/internal/codec"

	"github.com/gorilla/websocket"
)

// Request is what the fake received: the operation discriminant and its
// still-encoded arguments.
type Request struct {
	Type string           `cbor:"type"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

func (r Request) Decode(v any) error {
	return codec.Unmarshal(r.Data, v)
}

// Reply tells the fake how to answer one request.
type Reply struct {
	Type string
	Data any

	// ID overrides the correlation id; zero echoes the request id.
	ID uint64
	// SignalFirst sends an unsolicited signal frame before the reply.
	SignalFirst bool
	// Drop closes the connection instead of replying.
	Drop bool
}

func OK(responseType string, data any) Reply {
	return Reply{Type: responseType, Data: data}
}

func Fail(errorType, message string) Reply {
	return Reply{Type: "error", Data: map[string]string{"type": errorType, "message": message}}
}

type Handler func(Request) Reply

type envelope struct {
	Type string `cbor:"type"`
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data,omitempty"`
}

type payload struct {
	Type string `cbor:"type"`
	Data any    `cbor:"data,omitempty"`
}

type Server struct {
	srv     *httptest.Server
	handler Handler

	mu       sync.Mutex
	requests []Request
}

func New(t testing.TB, handler Handler) *Server {
	t.Helper()
	s := &Server{handler: handler}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) Host() string {
	return s.srv.Listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.srv.Listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := codec.Unmarshal(message, &env); err != nil {
			return
		}
		var req Request
		if err := codec.Unmarshal(env.Data, &req); err != nil {
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		reply := s.handler(req)
		if reply.Drop {
			return
		}
		if reply.SignalFirst {
			if err := writeFrame(conn, envelope{Type: "signal", Data: []byte{0xf6}}); err != nil {
				return
			}
		}

		body, err := codec.Marshal(payload{Type: reply.Type, Data: reply.Data})
		if err != nil {
			return
		}
		id := env.ID
		if reply.ID != 0 {
			id = reply.ID
		}
		if err := writeFrame(conn, envelope{Type: "response", ID: id, Data: body}); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, env envelope) error {
	frame, err := codec.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// ClosedPort returns a local port with nothing listening on it.
func ClosedPort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}
