package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fleetnav/navshare/pkg/auth"
	"github.com/fleetnav/navshare/pkg/fleet"
	"github.com/fleetnav/navshare/pkg/store"
)

const tokenURL = auth.DefaultAuthBaseURL + "/oauth2/v3/token"

var _ = Describe("Manager", func() {
	var (
		manager     *auth.Manager
		credentials *store.Memory
	)

	vehiclesURL := fmt.Sprintf("https://%s/api/1/vehicles", fleet.DefaultHost)

	// beginAndParseState starts a flow and extracts the state parameter
	// from the returned authorization URL.
	beginAndParseState := func(userID string) string {
		redirectURL, err := manager.BeginAuthorization(userID)
		Expect(err).NotTo(HaveOccurred())
		parsed, err := url.Parse(redirectURL)
		Expect(err).NotTo(HaveOccurred())
		return parsed.Query().Get("state")
	}

	registerTokenResponder := func() {
		httpmock.RegisterResponder(http.MethodPost, tokenURL,
			func(req *http.Request) (*http.Response, error) {
				Expect(req.ParseForm()).To(Succeed())
				Expect(req.PostForm.Get("grant_type")).To(Equal("authorization_code"))
				Expect(req.PostForm.Get("client_id")).To(Equal("cid"))
				Expect(req.PostForm.Get("client_secret")).To(Equal("secret"))
				Expect(req.PostForm.Get("code")).To(Equal("abc123"))
				Expect(req.PostForm.Get("redirect_uri")).To(Equal("https://nav.example.com/auth/callback"))
				return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
					"access_token":  "t-access",
					"refresh_token": "t-refresh",
					"token_type":    "Bearer",
				})
			})
	}

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		credentials = store.NewMemory()
		manager = auth.NewManager(auth.Config{
			ClientID:     "cid",
			ClientSecret: "secret",
			RedirectURI:  "https://nav.example.com/auth/callback",
		}, credentials)
	})

	Describe("BeginAuthorization", func() {
		It("builds the provider authorization URL", func() {
			redirectURL, err := manager.BeginAuthorization("alice")
			Expect(err).NotTo(HaveOccurred())

			parsed, err := url.Parse(redirectURL)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.Host).To(Equal("auth.tesla.com"))
			Expect(parsed.Path).To(Equal("/oauth2/v3/authorize"))

			query := parsed.Query()
			Expect(query.Get("client_id")).To(Equal("cid"))
			Expect(query.Get("redirect_uri")).To(Equal("https://nav.example.com/auth/callback"))
			Expect(query.Get("response_type")).To(Equal("code"))
			Expect(query.Get("scope")).To(Equal(strings.Join(auth.Scopes, " ")))
			Expect(len(query.Get("state"))).To(BeNumerically(">=", 22))
		})

		It("generates a fresh state for every call", func() {
			Expect(beginAndParseState("alice")).NotTo(Equal(beginAndParseState("alice")))
		})

		It("does not hit the network", func() {
			_, err := manager.BeginAuthorization("alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})
	})

	Describe("CompleteAuthorization", func() {
		It("fails when no authorization is in progress", func() {
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", "some-state")
			Expect(err).To(MatchError(auth.ErrNoPendingRequest))
		})

		It("rejects a mismatched state and consumes the pending flow", func() {
			beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", "forged-state")
			Expect(err).To(MatchError(auth.ErrStateMismatch))

			// The pending record is gone, so even the correct state cannot
			// be replayed.
			_, err = manager.CompleteAuthorization(context.Background(), "alice", "abc123", "forged-state")
			Expect(err).To(MatchError(auth.ErrNoPendingRequest))
		})

		It("rejects a missing code", func() {
			state := beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "", state)
			Expect(err).To(MatchError(auth.ErrMissingCode))
		})

		It("only honors the most recent authorization attempt", func() {
			first := beginAndParseState("alice")
			beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", first)
			Expect(err).To(MatchError(auth.ErrStateMismatch))
		})

		It("reports a failed token exchange with the provider's body", func() {
			httpmock.RegisterResponder(http.MethodPost, tokenURL,
				httpmock.NewStringResponder(http.StatusBadRequest, `{"error": "invalid_grant"}`))

			state := beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)

			var exchangeErr *auth.ExchangeError
			Expect(errors.As(err, &exchangeErr)).To(BeTrue())
			Expect(string(exchangeErr.Body)).To(ContainSubstring("invalid_grant"))
		})

		It("rejects a token response without a refresh token", func() {
			httpmock.RegisterResponder(http.MethodPost, tokenURL,
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{
					"access_token": "t-access",
					"token_type":   "Bearer",
				}))

			state := beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)

			var exchangeErr *auth.ExchangeError
			Expect(errors.As(err, &exchangeErr)).To(BeTrue())
		})

		It("fails when the account has no vehicles", func() {
			registerTokenResponder()
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL,
				httpmock.NewStringResponder(http.StatusOK, `{"count": 0, "response": []}`))

			state := beginAndParseState("alice")
			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)
			Expect(err).To(MatchError(auth.ErrNoVehicleFound))
		})

		It("stores a complete record for the account's first vehicle", func() {
			registerTokenResponder()
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL,
				httpmock.NewStringResponder(http.StatusOK, `{"count": 2, "response": [{"id": "V1"}, {"id": "V2"}]}`))

			state := beginAndParseState("alice")
			record, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.UserID).To(Equal("alice"))
			Expect(record.AccessToken).To(Equal("t-access"))
			Expect(record.RefreshToken).To(Equal("t-refresh"))
			Expect(record.VehicleID).To(Equal("V1"))
			Expect(record.IssuedAt).NotTo(BeZero())

			stored, err := credentials.Get("alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(record))
		})
	})

	Describe("CancelAuthorization", func() {
		It("discards the pending flow but keeps stored credentials", func() {
			Expect(credentials.Put(&store.CredentialRecord{UserID: "alice", AccessToken: "t"})).To(Succeed())
			state := beginAndParseState("alice")

			manager.CancelAuthorization("alice")

			_, err := manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)
			Expect(err).To(MatchError(auth.ErrNoPendingRequest))
			_, err = credentials.Get("alice")
			Expect(err).NotTo(HaveOccurred())
		})

		It("is a no-op without a pending flow", func() {
			manager.CancelAuthorization("alice")
		})
	})

	Describe("RevokeAuthorization", func() {
		It("is idempotent", func() {
			Expect(manager.RevokeAuthorization("alice")).To(Succeed())
			Expect(manager.RevokeAuthorization("alice")).To(Succeed())
		})

		It("removes stored credentials and pending flows", func() {
			Expect(credentials.Put(&store.CredentialRecord{UserID: "alice", AccessToken: "t"})).To(Succeed())
			state := beginAndParseState("alice")

			Expect(manager.RevokeAuthorization("alice")).To(Succeed())

			_, err := credentials.Get("alice")
			Expect(err).To(MatchError(store.ErrNotFound))
			_, err = manager.CompleteAuthorization(context.Background(), "alice", "abc123", state)
			Expect(err).To(MatchError(auth.ErrNoPendingRequest))
		})
	})
})
