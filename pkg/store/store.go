// Package store persists per-user Fleet API credentials.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a user has no stored credentials.
var ErrNotFound = errors.New("no credentials stored for user")

// CredentialRecord holds everything needed to send commands on behalf of a
// user. Records are written wholesale: a user either has a complete record
// or none at all.
type CredentialRecord struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	VehicleID    string    `json:"vehicle_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

// CredentialStore is a durable key-value mapping from user id to
// CredentialRecord. Implementations must be safe for concurrent use by
// requests for different users.
type CredentialStore interface {
	// Get returns the record for userID, or ErrNotFound.
	Get(userID string) (*CredentialRecord, error)
	// Put stores record, replacing any previous record for the same user.
	Put(record *CredentialRecord) error
	// Delete removes the record for userID. Deleting a missing record is
	// not an error.
	Delete(userID string) error
}
