package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of one authorization attempt.
// Registration and refresh failures are non-fatal: the flow logs them and
// falls through to the next step. The remaining ones are terminal for the
// attempt and surface to TokenForServer callers as an absent token.
var (
	// ErrRegistrationFailed indicates dynamic client registration failed.
	// The flow proceeds without client credentials.
	ErrRegistrationFailed = errors.New("dynamic client registration failed")

	// ErrRefreshFailed indicates a refresh grant was rejected. The flow
	// falls back to the interactive authorization flow.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrCallbackTimeout indicates no authorization redirect arrived
	// within the callback wait window.
	ErrCallbackTimeout = errors.New("timed out waiting for authorization callback")

	// ErrExchangeFailed indicates the token endpoint rejected the
	// authorization code exchange.
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// CallbackError is returned when the provider redirected back to the
// local listener with an error instead of an authorization code.
type CallbackError struct {
	// Code is the OAuth error code, e.g. "access_denied".
	Code string

	// Description is the optional human-readable error_description.
	Description string
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}
