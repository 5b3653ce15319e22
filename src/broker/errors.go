package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"tickstream/src/network"
)

// -----------------------------------------------------------------------------
// Error taxonomy
// -----------------------------------------------------------------------------

// ErrInstrumentNotFound means a symbol could not be mapped to an instrument
// token. Callers skip the symbol; it is never fatal.
var ErrInstrumentNotFound = errors.New("instrument not found")

// ErrNotAuthenticated means no access token is installed on the session.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is the invalid/expired-credential signature from the broker.
// Detecting it triggers the Unauthenticated transition; it is never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("broker auth error: %s", e.Reason)
}

// -----------------------------------------------------------------------------

// apiEnvelope is the broker's standard JSON response wrapper.
type apiEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// -----------------------------------------------------------------------------

// IsAuthError reports whether err carries the broker's invalid-credential
// signature: an explicit AuthError, an HTTP 401/403, or an API envelope with
// a TokenException error type.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}

	var httpErr *network.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status == 401 || httpErr.Status == 403 {
			return true
		}
		var env apiEnvelope
		if json.Unmarshal(httpErr.Body, &env) == nil && env.ErrorType == "TokenException" {
			return true
		}
	}

	return false
}

// -----------------------------------------------------------------------------

// classify turns a transport error / response body into the session's error
// taxonomy. The body is consulted even on errors because the broker ships
// its envelope on non-200 responses too.
func classify(body []byte, err error) error {
	if err == nil {
		return nil
	}
	if IsAuthError(err) {
		var env apiEnvelope
		reason := err.Error()
		if json.Unmarshal(body, &env) == nil && env.Message != "" {
			reason = env.Message
		}
		return &AuthError{Reason: reason}
	}
	return err
}
