package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidURL is returned when the server address is not an absolute URL.
	ErrInvalidURL = errors.New("invalid server url")
	// ErrNetwork is returned when no HTTP response was received.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized is returned for HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer is returned for any other non-2xx status.
	ErrServer = errors.New("server error")
	// ErrMissingCredentials is returned when login is attempted without a
	// username or password.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// StatusError describes a non-2xx reply.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// Unwrap maps the status onto ErrUnauthorized or ErrServer.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrServer
}
