package conductor

import "fmt"

// ConnectionError means the conductor could not be reached, the dial
// retries were exhausted, or an established connection broke. The
// channel does not reconnect; open a new one.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("conductor connection %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("conductor connection %s: %v", e.Endpoint, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ProtocolError is an explicit error response from the conductor.
type ProtocolError struct {
	Request string
	Type    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("conductor rejected %q: %s: %s", e.Request, e.Type, e.Message)
}

// UnexpectedResponseError means the response discriminant (or
// correlation id) does not belong to the request that was sent, or its
// payload does not have the shape that discriminant promises.
type UnexpectedResponseError struct {
	Request string
	Got     string
	// Err is the decode failure, if any.
	Err error
}

func (e *UnexpectedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response to %q: %s: %v", e.Request, e.Got, e.Err)
	}
	return fmt.Sprintf("unexpected response to %q: %s", e.Request, e.Got)
}

func (e *UnexpectedResponseError) Unwrap() error {
	return e.Err
}
