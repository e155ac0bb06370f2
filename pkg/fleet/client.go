// Package fleet implements the subset of the Tesla Fleet API needed to look
// up a vehicle, wake it, and push a navigation destination to it.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetnav/navshare/internal/log"
)

// DefaultHost serves accounts whose region cannot be determined from their
// access token.
const DefaultHost = "fleet-api.prd.na.vn.cloud.tesla.com"

// MaxResponseLength caps how many bytes of a response body are read.
const MaxResponseLength = 10_000_000

// We're mostly interested in stopping paths; the http package handles the rest.
var domainRegEx = regexp.MustCompile(`^[A-Za-z0-9-.]+$`)

// HTTPError is returned when the API responds with a non-200 status.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

// Temporary returns true if the request may succeed if retried later.
func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout
}

// MayHaveSucceeded returns true if the command might have executed even
// though the client received an error.
func (e *HTTPError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

// Client issues bearer-authenticated requests to a regional Fleet API server.
type Client struct {
	// The UserAgent is sent with every request and can be overridden.
	UserAgent string
	// Host is the regional API server, without scheme.
	Host string

	authHeader string
	client     http.Client
}

// NewClient returns a Client for the given OAuth access token.
//
// Tesla issues JWT access tokens whose audience list names the regional Fleet
// API server; when the token carries one, the Client uses it. Opaque tokens
// fall back to [DefaultHost], and callers can override Host either way.
func NewClient(accessToken, userAgent string) *Client {
	if userAgent == "" {
		userAgent = "navshare"
	}
	return &Client{
		UserAgent:  userAgent,
		Host:       hostFromToken(accessToken),
		authHeader: "Bearer " + strings.TrimSpace(accessToken),
	}
}

func hostFromToken(accessToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		log.Debug("Could not parse access token claims, using default API host: %s", err)
		return DefaultHost
	}
	audiences, err := claims.GetAudience()
	if err != nil {
		return DefaultHost
	}
	for _, audience := range audiences {
		if strings.HasPrefix(audience, "https://auth.tesla.") {
			continue
		}
		domain, _ := strings.CutPrefix(audience, "https://")
		domain, _ = strings.CutSuffix(domain, "/")
		if !domainRegEx.MatchString(domain) {
			continue
		}
		if validTeslaDomainSuffix(domain) && strings.HasPrefix(domain, "fleet-api.") {
			return domain
		}
	}
	return DefaultHost
}

func validTeslaDomainSuffix(domain string) bool {
	return strings.HasSuffix(domain, ".tesla.com") || strings.HasSuffix(domain, ".tesla.cn") || strings.HasSuffix(domain, ".teslamotors.com")
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		log.Debug("Sending %s to %s: %s", method, endpoint, encoded)
		body = bytes.NewReader(encoded)
	} else {
		log.Debug("Sending %s to %s", method, endpoint)
	}

	url := fmt.Sprintf("https://%s/%s", c.Host, endpoint)
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", endpoint, err)
	}
	request.Header.Set("User-Agent", c.UserAgent)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", c.authHeader)
	request.Header.Set("Accept", "*/*")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error sending request to %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	reader := io.LimitedReader{R: response.Body, N: MaxResponseLength}
	responseBody, err := io.ReadAll(&reader)
	if err != nil {
		return nil, err
	}

	log.Debug("Server returned %d: %s: %s", response.StatusCode, http.StatusText(response.StatusCode), responseBody)
	if response.StatusCode != http.StatusOK {
		return responseBody, &HTTPError{Code: response.StatusCode, Message: string(responseBody)}
	}
	return responseBody, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, payload)
}
