package remote

import "fmt"

// ErrorKind classifies a failed exchange.
type ErrorKind string

const (
	// KindConnection means no response reached the client.
	KindConnection ErrorKind = "connection"
	// KindTimeout means the exchange exceeded Timeout.
	KindTimeout ErrorKind = "timeout"
	// KindProtocol means the server answered with a non-2xx status.
	KindProtocol ErrorKind = "protocol"
	// KindDecode means the body was not the expected JSON object.
	KindDecode ErrorKind = "decode"
	// KindEmptyResponse means a body was expected but none was sent.
	KindEmptyResponse ErrorKind = "empty_response"
	// KindRejected means the server answered but reported success=false.
	KindRejected ErrorKind = "rejected"
)

// Error is a classified remote exchange failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
