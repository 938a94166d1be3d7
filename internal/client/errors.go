package client

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMissingID        = errors.New("server response carried no applet uuid")

	errServerFailure = errors.New("server failure")
)

// StatusError reports a non-2xx response
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// Unwrap lets callers match with errors.Is(err, ErrUnexpectedStatus)
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
