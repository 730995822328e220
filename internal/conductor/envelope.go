package conductor

import (
	"fmt"

	"holoport-stats/internal/codec"
)

// Frame types carried in every websocket binary message.
const (
	frameRequest  = "request"
	frameResponse = "response"
	frameSignal   = "signal"
)

// responseError is the discriminant of an explicit error response, on
// either interface.
const responseError = "error"

// envelope is one websocket binary frame. Data holds an encoded
// payload; responses echo the id of the request they answer.
type envelope struct {
	Type string `cbor:"type"`
	ID   uint64 `cbor:"id"`
	Data []byte `cbor:"data,omitempty"`
}

// Request is a discriminated operation and its arguments.
type Request struct {
	Type string `cbor:"type"`
	Data any    `cbor:"data,omitempty"`
}

// Response is a successful, correlated reply. Data is decoded by the
// interface that knows which discriminants it accepts.
type Response struct {
	Request string           `cbor:"-"`
	Type    string           `cbor:"type"`
	Data    codec.RawMessage `cbor:"data,omitempty"`
}

func (r Response) decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r.Data, v); err != nil {
		return &UnexpectedResponseError{
			Request: r.Request,
			Got:     fmt.Sprintf("%s with undecodable payload", r.Type),
			Err:     err,
		}
	}
	return nil
}

func (r Response) unexpected() error {
	return &UnexpectedResponseError{Request: r.Request, Got: r.Type}
}

type wireError struct {
	Type    string `cbor:"type"`
	Message string `cbor:"message"`
}
