package client

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect wraps a failure to establish the transport.
	ErrConnect = errors.New("client: connect failed")
	// ErrSessionBusy rejects a submission while another request is in flight.
	ErrSessionBusy = errors.New("client: request already in flight")
	// ErrSessionClosed rejects submissions after the session terminated.
	ErrSessionClosed = errors.New("client: session closed")
	// ErrSendFailed is a write failure. It is fatal to the session.
	ErrSendFailed = errors.New("client: send failed")
	// ErrRequestTimeout is request-local; the session stays usable.
	ErrRequestTimeout = errors.New("client: request timed out")
	// ErrDisconnected resolves a pending request when the transport drops.
	ErrDisconnected = errors.New("client: session disconnected")
	// ErrDecode is a malformed or unrecognized inbound frame. Non-fatal.
	ErrDecode = errors.New("client: undecodable response")
	// ErrUnexpectedResponse is a well-formed response of the wrong variant.
	ErrUnexpectedResponse = errors.New("client: unexpected response variant")
	// ErrOperationFailed is a well-formed response with success=false.
	ErrOperationFailed = errors.New("client: operation failed")
	// ErrTransactionAborted is a failed atomic update or snapshot read.
	ErrTransactionAborted = errors.New("client: transaction aborted")

	ErrNotWriteOperation = errors.New("client: operation is not a write primitive")
	ErrNotReadOperation  = errors.New("client: operation is not a read primitive")
)

// ServerError carries a server-reported failure for one request.
type ServerError struct {
	Code    uint32
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: server error code=%d", e.Code)
	}
	return fmt.Sprintf("client: server error code=%d: %s", e.Code, e.Message)
}
