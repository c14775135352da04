package session

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/transport"
)

const (
	credentialNotice = "There was an issue with your API key or network connection. Please re-select your API key and try again."
	startNotice      = "Could not start the conversation. Please ensure you have given microphone permissions and have a valid API key."
)

// NeedsCredentials reports whether err suggests the API key should be
// selected again before the next start.
func NeedsCredentials(err error) bool {
	var openErr *transport.OpenError
	if errors.As(err, &openErr) {
		return openErr.CredentialsRejected()
	}
	var runtimeErr *transport.RuntimeError
	if errors.As(err, &runtimeErr) {
		return runtimeErr.CredentialsRejected()
	}
	return false
}

// UserNotice turns a session error into a message for the user. A normal
// close has no notice.
func UserNotice(err error) string {
	if err == nil || errors.Is(err, transport.ErrClosed) {
		return ""
	}
	if NeedsCredentials(err) {
		return credentialNotice
	}

	var openErr *transport.OpenError
	if errors.As(err, &openErr) || errors.Is(err, capture.ErrMicrophonePermission) {
		return startNotice
	}

	var runtimeErr *transport.RuntimeError
	if errors.As(err, &runtimeErr) {
		return fmt.Sprintf("An error occurred: %s. Please try again.", runtimeErr.Err)
	}
	return fmt.Sprintf("An error occurred: %s. Please try again.", err)
}
