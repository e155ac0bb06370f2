// Package auth implements the OAuth 2.0 authorization-code flow against
// Tesla's identity service and persists the resulting credentials per user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/fleetnav/navshare/internal/log"
	"github.com/fleetnav/navshare/pkg/fleet"
	"github.com/fleetnav/navshare/pkg/store"
)

// DefaultAuthBaseURL is Tesla's identity service.
const DefaultAuthBaseURL = "https://auth.tesla.com"

// Scopes requested during authorization. vehicle_device_data is needed to
// poll vehicle state and vehicle_cmds to send the navigation command.
var Scopes = []string{"openid", "offline_access", "vehicle_device_data", "vehicle_cmds"}

const stateEntropyBytes = 16

// Config identifies the application to the OAuth provider.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURI must byte-match the URI registered with the provider,
	// trailing slash included; it is sent both in the authorization URL and
	// in the token exchange.
	RedirectURI string
	// AuthBaseURL overrides DefaultAuthBaseURL, chiefly for tests.
	AuthBaseURL string
	// UserAgent is passed through to Fleet API requests.
	UserAgent string
}

type pendingAuthorization struct {
	state     string
	createdAt time.Time
}

// Manager runs the authorization-code flow. Pending authorizations live only
// in memory: they are created by BeginAuthorization and consumed, pass or
// fail, by the first CompleteAuthorization call for that user.
type Manager struct {
	oauth       oauth2.Config
	credentials store.CredentialStore
	userAgent   string

	// HTTPClient overrides the client used for the token exchange.
	HTTPClient *http.Client

	mu      sync.Mutex
	pending map[string]pendingAuthorization
}

// NewManager returns a Manager that persists credentials in credentials.
func NewManager(config Config, credentials store.CredentialStore) *Manager {
	base := config.AuthBaseURL
	if base == "" {
		base = DefaultAuthBaseURL
	}
	return &Manager{
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth2/v3/authorize",
				TokenURL: base + "/oauth2/v3/token",
				// Tesla expects client credentials in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		credentials: credentials,
		userAgent:   config.UserAgent,
		pending:     make(map[string]pendingAuthorization),
	}
}

func generateState() (string, error) {
	raw := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("could not generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// BeginAuthorization starts an authorization flow for userID and returns the
// provider URL to send the user to. No network request is made.
//
// Calling BeginAuthorization again for the same user replaces the pending
// flow: only the most recent authorization attempt can complete.
func (m *Manager) BeginAuthorization(userID string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, exists := m.pending[userID]; exists {
		log.Warning("Replacing pending authorization for %s", userID)
	}
	m.pending[userID] = pendingAuthorization{state: state, createdAt: time.Now()}
	m.mu.Unlock()

	return m.oauth.AuthCodeURL(state), nil
}

func (m *Manager) takePending(userID string) (pendingAuthorization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, ok := m.pending[userID]
	delete(m.pending, userID)
	return pending, ok
}

// CompleteAuthorization validates the provider's callback, exchanges the
// authorization code for tokens, resolves the account's first vehicle, and
// persists the resulting CredentialRecord.
//
// The pending authorization is discarded whether or not the exchange
// succeeds; authorization codes are single-use, so callers must restart from
// BeginAuthorization rather than retry with the same code.
func (m *Manager) CompleteAuthorization(ctx context.Context, userID, code, state string) (*store.CredentialRecord, error) {
	pending, ok := m.takePending(userID)
	if !ok {
		return nil, ErrNoPendingRequest
	}
	if state == "" || state != pending.state {
		log.Warning("Discarding authorization callback for %s with mismatched state", userID)
		return nil, ErrStateMismatch
	}
	if code == "" {
		return nil, ErrMissingCode
	}

	if m.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}
	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &ExchangeError{Err: err, Body: retrieveErr.Body}
		}
		return nil, &ExchangeError{Err: err}
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return nil, &ExchangeError{Err: errors.New("token response missing access_token or refresh_token")}
	}

	client := fleet.NewClient(token.AccessToken, m.userAgent)
	vehicles, err := client.Vehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVehicleFound, err)
	}
	if len(vehicles) == 0 {
		return nil, ErrNoVehicleFound
	}

	record := &store.CredentialRecord{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		VehicleID:    vehicles[0].ID,
		IssuedAt:     time.Now(),
	}
	if err := m.credentials.Put(record); err != nil {
		return nil, fmt.Errorf("could not persist credentials: %w", err)
	}
	log.Info("Authorized %s for vehicle %s", userID, record.VehicleID)
	return record, nil
}

// CancelAuthorization discards any pending authorization for userID without
// touching stored credentials. Called when the provider reports that the user
// denied the request, so the abandoned flow cannot be completed later.
func (m *Manager) CancelAuthorization(userID string) {
	m.mu.Lock()
	delete(m.pending, userID)
	m.mu.Unlock()
}

// RevokeAuthorization removes any stored credentials and any pending
// authorization for userID. It is idempotent.
func (m *Manager) RevokeAuthorization(userID string) error {
	m.mu.Lock()
	delete(m.pending, userID)
	m.mu.Unlock()
	return m.credentials.Delete(userID)
}
