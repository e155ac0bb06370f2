// Package nav wakes a vehicle and sends it a navigation destination on
// behalf of an authorized user.
package nav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetnav/navshare/internal/log"
	"github.com/fleetnav/navshare/pkg/fleet"
	"github.com/fleetnav/navshare/pkg/store"
)

// RetryPolicy bounds the wake/poll sequence. Tests inject a zero Interval.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultRetryPolicy polls for up to 50 seconds, which covers how long a
// sleeping vehicle usually takes to come online.
var DefaultRetryPolicy = RetryPolicy{Attempts: 10, Interval: 5 * time.Second}

// CommandClient sends commands to a single vehicle using stored credentials.
type CommandClient struct {
	client    *fleet.Client
	vehicleID string
	policy    RetryPolicy
}

// NewCommandClient builds a client from a complete CredentialRecord. A zero
// policy falls back to DefaultRetryPolicy.
func NewCommandClient(record *store.CredentialRecord, userAgent string, policy RetryPolicy) *CommandClient {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &CommandClient{
		client:    fleet.NewClient(record.AccessToken, userAgent),
		vehicleID: record.VehicleID,
		policy:    policy,
	}
}

// WakeAndWait sends a wake command and polls vehicle state until the car
// reports online, checking at most policy.Attempts times with
// policy.Interval between checks. It blocks for up to Attempts × Interval;
// interactive callers should run it off the request path and show a "waking
// vehicle" indication meanwhile.
func (c *CommandClient) WakeAndWait(ctx context.Context) error {
	log.Info("Waking vehicle %s", c.vehicleID)
	if err := c.client.WakeUp(ctx, c.vehicleID); err != nil {
		// The wake response itself doesn't matter; the polls below decide.
		log.Debug("Wake command returned error: %s", err)
	}

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		data, err := c.client.VehicleData(ctx, c.vehicleID)
		if err == nil && data.State == fleet.StateOnline {
			log.Info("Vehicle %s is online", c.vehicleID)
			return nil
		}
		if err != nil {
			log.Debug("Vehicle state check %d/%d failed: %s", attempt, c.policy.Attempts, err)
		} else {
			log.Debug("Vehicle state check %d/%d: %s", attempt, c.policy.Attempts, data.State)
		}
		if attempt == c.policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.policy.Interval):
		}
	}
	return ErrWakeTimeout
}

// SendNavigation pushes destination to the vehicle's navigation system and
// returns a confirmation message. Call it only after WakeAndWait succeeds.
//
// The command is treated as successful only when the provider confirms it
// with a true result; any other response shape fails rather than guessing
// at partial success.
func (c *CommandClient) SendNavigation(ctx context.Context, destination string) (string, error) {
	body, err := c.client.Navigate(ctx, c.vehicleID, destination)
	if err != nil {
		return "", &CommandFailedError{Err: err, Response: body}
	}

	var envelope struct {
		Response *struct {
			Result *bool  `json:"result"`
			Reason string `json:"reason"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &CommandFailedError{Err: fmt.Errorf("invalid command response: %w", err), Response: body}
	}
	if envelope.Response == nil || envelope.Response.Result == nil || !*envelope.Response.Result {
		return "", &CommandFailedError{Err: errors.New("vehicle did not confirm the request"), Response: body}
	}
	return fmt.Sprintf("Navigation request sent successfully to: %s", destination), nil
}
