// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across the client core.
var (
	// ErrLoginRequired indicates a mutation was attempted with no
	// authenticated session. Resolved locally, never sent to the server.
	ErrLoginRequired = errors.New("login required")

	// ErrAuthExpired indicates the access token was rejected and the
	// silent refresh also failed. The session must reset to anonymous.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNetwork indicates a transport failure or an unexpected non-2xx
	// response not covered by a more specific error.
	ErrNetwork = errors.New("network failure")

	// ErrNoCredentials indicates the credential store holds no session.
	ErrNoCredentials = errors.New("no stored credentials")
)

// ValidationError reports a client-side schema check that failed before
// any request was sent. Field names the first violated field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthError carries the server-provided message for a failed
// authentication attempt (wrong password, unknown account, bad code).
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

// ServerError is a business rejection the server returned with a
// well-formed payload (e.g. insufficient stock).
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server rejected (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected (%d): %s", e.Status, e.Message)
}
