package judicial

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by calls made on a released session.
var ErrSessionClosed = errors.New("judicial: session closed")

// RemoteServiceError reports an upstream failure. Status is zero when the
// request never produced a response (timeout, connection reset).
type RemoteServiceError struct {
	Endpoint string
	Status   int
	Reason   string
	Err      error
}

func (e *RemoteServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("judicial %s: transport failure: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("judicial %s: status %d %s", e.Endpoint, e.Status, e.Reason)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// ValidationError reports a response body that could not be decoded or does
// not have the expected shape.
type ValidationError struct {
	Endpoint string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("judicial %s: invalid payload: %v", e.Endpoint, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a remote failure worth another attempt.
// Validation failures are deterministic and never retried.
func IsRetryable(err error) bool {
	var remote *RemoteServiceError
	return errors.As(err, &remote)
}
