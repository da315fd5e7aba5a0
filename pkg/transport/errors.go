package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHistory is returned when Open is called without messages.
	ErrEmptyHistory = errors.New("history must contain at least one message")

	// ErrMissingCredential is returned before any network call when no API
	// key can be resolved. It is a configuration error, not a network one.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrCancelled is returned when the caller's context was cancelled
	// before or during Open. It always wraps context.Canceled as well.
	ErrCancelled = errors.New("request cancelled")

	errNoBody = errors.New("response has no body")
)

// TransportError reports a request that reached the network but did not
// yield a usable stream: a connection failure, a non-2xx status, or an
// empty body.
type TransportError struct {
	// StatusCode is zero when no response was received.
	StatusCode int

	// Body is an excerpt of the response body, bounded by maxErrorBody.
	Body string

	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("completions endpoint returned %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("completions endpoint returned %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("completions endpoint returned %d", e.StatusCode)
	default:
		return fmt.Sprintf("completions request failed: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
