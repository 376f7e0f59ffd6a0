package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidID is returned for identifiers the server could never have assigned.
var ErrInvalidID = errors.New("invalid menu item id")

// TransportError reports a request that never produced a usable response:
// the server was unreachable, the call timed out or was canceled, or a
// success response body could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("menu api %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-2xx response. The body is not part of the contract.
type ServerError struct {
	Op         string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("menu api %s: http %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a ServerError carrying a 404.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
