package connect

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

var (
	// ErrNotConnected is returned by Read before a successful Connect.
	ErrNotConnected = errors.New("consumer is not connected")

	// ErrStreamClosed is returned once the consumer has been stopped.
	ErrStreamClosed = errors.New("stream closed")

	// ErrRetriesExhausted wraps the last transient error after the
	// reconnect policy gives up.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrAlreadyConnected is returned by operations that are only valid
	// before Connect, such as AddFilter.
	ErrAlreadyConnected = errors.New("consumer is already connected")
)

// AuthError is an error response from the streaming service that will not
// succeed on retry, such as invalid credentials. The consumer never retries
// these.
type AuthError struct {
	Status  int
	Message string
	Code    int
	Details json.RawMessage
}

func (e *AuthError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("stream request rejected: %d %s (error_code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("stream request rejected: %d %s", e.Status, e.Message)
}

// authErrorFromResponse builds an AuthError from a non-200 response,
// pulling error/error_code/details out of the body when it is JSON.
func authErrorFromResponse(resp *http.Response) *AuthError {
	e := &AuthError{Status: resp.StatusCode, Message: resp.Status}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return e
	}
	var payload struct {
		Error     string          `json:"error"`
		ErrorCode int             `json:"error_code"`
		Details   json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	if payload.Error != "" {
		e.Message = payload.Error
	}
	e.Code = payload.ErrorCode
	e.Details = payload.Details
	return e
}

// ConnectError is a transient connection failure: network errors, timeouts,
// and 5xx responses. The consumer absorbs these via reconnect with backoff.
type ConnectError struct {
	Status int // zero when the failure happened below HTTP
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("stream connect failed: status %d", e.Status)
	}
	return fmt.Sprintf("stream connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DecodeError is a malformed frame. It is non-fatal: the consumer skips the
// frame and keeps reading from the same connection.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StoreError wraps a Recorder failure. It surfaces synchronously from Ack or
// Connect; whether it is fatal is the caller's call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("offset store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
