package nav

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetnav/navshare/pkg/store"
)

// Result is returned to both the interactive page and the shortcut API.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Service is the single entry point for sending a destination to a user's
// vehicle. Requests for the same user serialize on a per-user lock so a
// double-click cannot start two overlapping wake sequences; different users
// do not contend.
type Service struct {
	// Policy bounds the wake/poll sequence for every request.
	Policy    RetryPolicy
	UserAgent string

	credentials store.CredentialStore
	userLocks   sync.Map // userID -> *sync.Mutex
}

func NewService(credentials store.CredentialStore) *Service {
	return &Service{
		Policy:      DefaultRetryPolicy,
		credentials: credentials,
	}
}

func (s *Service) lockUser(userID string) func() {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Authenticated reports whether userID has stored credentials.
func (s *Service) Authenticated(userID string) bool {
	_, err := s.credentials.Get(userID)
	return err == nil
}

// HandleNavigationRequest looks up the user's credentials, wakes their
// vehicle, and sends destination to its navigation system. It returns
// ErrNotAuthenticated when the user has no stored credentials, and otherwise
// propagates the wake or command error as-is.
func (s *Service) HandleNavigationRequest(ctx context.Context, userID, destination string) (*Result, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	record, err := s.credentials.Get(userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}

	client := NewCommandClient(record, s.UserAgent, s.Policy)
	if err := client.WakeAndWait(ctx); err != nil {
		return nil, err
	}
	message, err := client.SendNavigation(ctx, destination)
	if err != nil {
		return nil, err
	}
	return &Result{Status: "success", Message: message}, nil
}
