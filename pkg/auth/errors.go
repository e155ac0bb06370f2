package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingRequest indicates a callback arrived for a user with no
	// authorization in progress.
	ErrNoPendingRequest = errors.New("no authorization in progress for user")
	// ErrStateMismatch indicates the state echoed by the provider did not
	// exactly match the one sent, so the callback cannot be trusted.
	ErrStateMismatch = errors.New("authorization state parameter mismatch")
	// ErrMissingCode indicates the provider's callback did not include an
	// authorization code.
	ErrMissingCode = errors.New("authorization callback did not include a code")
	// ErrNoVehicleFound indicates the account has no vehicles to command.
	ErrNoVehicleFound = errors.New("no vehicles found on account")
)

// ExchangeError is returned when the code-for-token exchange fails. Body
// retains the provider's raw response for diagnostics when available.
type ExchangeError struct {
	Err  error
	Body []byte
}

func (e *ExchangeError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("token exchange failed: %s: %s", e.Err, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %s", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
