package access

import (
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/remote"
)

var (
	// ErrPermissionDenied is returned when the caller lacks the capability for an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrFeatureDisabled is returned by local overrides while local admin mode is off.
	ErrFeatureDisabled = errors.New("local admin mode not enabled")
	// ErrNoActiveConfig is returned when an action needs the active configuration and none exists.
	ErrNoActiveConfig = errors.New("no active configuration found")
	// ErrIncompleteConfig is returned when remote credentials are missing.
	ErrIncompleteConfig = errors.New("configuration is missing server url, client id or api key")
	// ErrRemoteControlSuspended is returned for remote actions while local admin mode is on.
	ErrRemoteControlSuspended = errors.New("remote control suspended while local admin mode is enabled")
	// ErrActiveConfigExists is returned when a second configuration would become active.
	ErrActiveConfigExists = errors.New("another configuration is already active")
	// ErrNotFound is returned when a configuration does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLoginTaken is returned when creating a principal with an existing login.
	ErrLoginTaken = errors.New("login already exists")
	// ErrInvalidCredentials is returned when inbound shared-secret authentication fails.
	ErrInvalidCredentials = errors.New("invalid API credentials")
)

// AuthenticationDeniedError is raised at login when the install is blocked
// and the authenticating principal is not exempt.
type AuthenticationDeniedError struct {
	Reason string
}

func (e *AuthenticationDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// ConnectionTestError reports a failed connection test with the remote result.
type ConnectionTestError struct {
	Result remote.Result
}

func (e *ConnectionTestError) Error() string {
	msg := e.Result.Error
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("connection test failed: %s", msg)
}
