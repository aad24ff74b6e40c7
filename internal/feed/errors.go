package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrPushDisabled is returned by the push transport when the thread view
	// carries no realtime store configuration.
	ErrPushDisabled = errors.New("push transport disabled")

	// ErrNoMessage means the backend answered without the authoritative message.
	ErrNoMessage = errors.New("response carried no message")
)

// StatusError indicates a non-2xx response from a chat endpoint.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
