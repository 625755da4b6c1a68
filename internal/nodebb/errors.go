package nodebb

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when the forum replies with a success
// status but the body lacks the topic or post identifier.
var ErrUnexpectedResponse = errors.New("unexpected nodebb response")

// APIError is a request the forum rejected. It carries the remote status
// code and body so callers can log the exact rejection.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nodebb API error: %d %s", e.StatusCode, e.Body)
}
