package transport

import (
	"errors"
	"strings"
)

// ErrClosed reports a remote-initiated, normal end of the stream.
var ErrClosed = errors.New("transport closed")

// credentialHints are fragments of engine and network errors that usually
// mean the API key has to be selected again.
var credentialHints = []string{
	"API key not valid",
	"Requested entity was not found",
	"Network error",
	"PERMISSION_DENIED",
	"UNAUTHENTICATED",
	"bad handshake",
}

// OpenError is a failure to connect to the engine.
type OpenError struct {
	Err error
}

func NewOpenError(err error) *OpenError {
	return &OpenError{Err: err}
}

func (e *OpenError) Error() string { return "failed to open transport: " + e.Err.Error() }
func (e *OpenError) Unwrap() error { return e.Err }

// CredentialsRejected reports whether the failure looks like an
// authentication or network problem that a new API key may fix.
func (e *OpenError) CredentialsRejected() bool { return IsCredentialError(e.Err) }

// RuntimeError is a failure of an established stream.
type RuntimeError struct {
	Err error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string { return "transport failed: " + e.Err.Error() }
func (e *RuntimeError) Unwrap() error { return e.Err }

func (e *RuntimeError) CredentialsRejected() bool { return IsCredentialError(e.Err) }

// IsCredentialError reports whether err mentions one of the known
// credential or network failure messages.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	for _, hint := range credentialHints {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}
