package gatekeepersdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to a Gatekeeper service. It performs the anonymous calls
// and creates Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the service at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Authenticate signs in with a user name or email address and returns a
// session holding the issued token pair.
func (c *SDKClient) Authenticate(ctx context.Context, userNameOrEmail, password string) (*Session, error) {
	res, err := c.AuthenticateRaw(ctx, AuthenticateRequest{
		UserNameOrEmailAddress: userNameOrEmail,
		Password:               password,
	})
	if err != nil {
		return nil, err
	}
	return c.NewSessionFromTokens(res.AccessToken, res.ExpireInSeconds, res.RefreshToken, res.RefreshTokenExpireInSeconds), nil
}

// AuthenticateRaw posts the credentials and returns the response as is.
func (c *SDKClient) AuthenticateRaw(ctx context.Context, req AuthenticateRequest) (*AuthenticateResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/identities/authenticate", req, "")
	if err != nil {
		return nil, err
	}

	var out AuthenticateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token.
func (c *SDKClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshTokenResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/identities/refresh-token", RefreshTokenRequest{Token: refreshToken}, "")
	if err != nil {
		return nil, err
	}

	var out RefreshTokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentSession describes an anonymous caller: no user, the full catalog
// and no grants.
func (c *SDKClient) CurrentSession(ctx context.Context) (*CurrentSessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/identities/current-session", nil, nil)
	if err != nil {
		return nil, err
	}

	var out CurrentSessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewSessionFromTokens creates a session from tokens obtained earlier.
// Lifetimes are in seconds from now. The session still refreshes the access
// token when it expires.
func (c *SDKClient) NewSessionFromTokens(accessToken string, expiresIn int, refreshToken string, refreshExpiresIn int) *Session {
	now := time.Now()
	return &Session{
		client:           c,
		accessToken:      accessToken,
		refreshToken:     refreshToken,
		expiresAt:        expiryWithBuffer(now, expiresIn),
		refreshExpiresAt: now.Add(time.Duration(refreshExpiresIn) * time.Second),
	}
}
