package nav

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates the user has never completed an
	// authorization, or has disconnected their account.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrWakeTimeout indicates the vehicle never reported online within the
	// retry budget.
	ErrWakeTimeout = errors.New("vehicle did not come online after maximum wake attempts")
)

// CommandFailedError is returned when the vehicle does not confirm a
// command. Response retains the raw provider response for diagnostics.
type CommandFailedError struct {
	Err      error
	Response []byte
}

func (e *CommandFailedError) Error() string {
	if len(e.Response) > 0 {
		return fmt.Sprintf("navigation request failed: %s: %s", e.Err, e.Response)
	}
	return fmt.Sprintf("navigation request failed: %s", e.Err)
}

func (e *CommandFailedError) Unwrap() error {
	return e.Err
}
