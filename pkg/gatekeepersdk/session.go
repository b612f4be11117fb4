package gatekeepersdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrSessionExpired is returned when the access token has expired and the
// refresh token can no longer renew it.
var ErrSessionExpired = errors.New("gatekeepersdk: session expired")

// refreshBuffer renews the access token slightly before it expires.
const refreshBuffer = 30 * time.Second

// Session is a signed-in caller. Its methods refresh the access token when
// needed and are safe for concurrent use.
type Session struct {
	client *SDKClient

	mu               sync.RWMutex
	accessToken      string
	refreshToken     string
	expiresAt        time.Time
	refreshExpiresAt time.Time
}

func expiryWithBuffer(now time.Time, seconds int) time.Time {
	return now.Add(time.Duration(seconds)*time.Second - refreshBuffer)
}

// getValidToken returns a usable access token, refreshing it if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	now := time.Now()
	if now.Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if s.refreshToken == "" || !now.Before(s.refreshExpiresAt) {
		return "", ErrSessionExpired
	}

	res, err := s.client.RefreshAccessToken(ctx, s.refreshToken)
	if err != nil {
		if IsBadRequest(err) {
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = res.AccessToken
	s.expiresAt = expiryWithBuffer(now, res.ExpireInSeconds)

	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// CurrentSession describes the signed-in user and their permissions.
func (s *Session) CurrentSession(ctx context.Context) (*CurrentSessionResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/v1/identities/current-session", nil)
	if err != nil {
		return nil, err
	}

	var out CurrentSessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the session's tokens on the server and forgets them
// locally. The session is unusable afterwards.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()

	resp, err := s.client.doJSON(ctx, http.MethodPost, "/api/v1/identities/sign-out", nil, token)
	if err != nil {
		return err
	}
	if err := checkStatusOK(resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	s.refreshExpiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}
