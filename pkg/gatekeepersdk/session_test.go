package gatekeepersdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListOptionsEncode(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/api/v1/user", ListOptions{}.encode("/api/v1/user"))
	require.Equal(t,
		"/api/v1/user?filters=ad+min&maxResultCount=5&skipCount=10",
		ListOptions{Filter: "ad min", SkipCount: 10, MaxResultCount: 5}.encode("/api/v1/user"))
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/identities/authenticate":
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid username or password!"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	t.Cleanup(srv.Close)

	c := NewSDKClient(srv.URL + "/")

	_, err := c.Authenticate(context.Background(), "admin", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "Invalid username or password!", apiErr.Detail)
	require.True(t, IsBadRequest(err))

	_, err = c.GetLiveness(context.Background())
	require.Equal(t, http.StatusBadGateway, StatusCode(err))
	require.Contains(t, err.Error(), "upstream down")
}

func TestSessionRefreshesExpiredAccessToken(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/identities/refresh-token":
			var req RefreshTokenRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token != "refresh-1" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Your session is expired!"})
				return
			}
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, RefreshTokenResponse{AccessToken: "access-2", ExpireInSeconds: 3600})
		case "/api/v1/identities/current-session":
			if r.Header.Get("Authorization") != "Bearer access-2" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "The Token is invalid."})
				return
			}
			writeJSON(w, http.StatusOK, CurrentSessionResponse{
				User:               &SessionUser{ID: "u1", UserName: "admin"},
				GrantedPermissions: map[string]bool{"Pages.Administration.Users": true},
			})
		case "/api/v1/identities/sign-out":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewSDKClient(srv.URL)
	ctx := context.Background()

	// An access token inside the refresh buffer counts as expired.
	s := c.NewSessionFromTokens("access-1", 10, "refresh-1", 3600)

	me, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "admin", me.User.UserName)
	require.True(t, me.GrantedPermissions["Pages.Administration.Users"])
	require.Equal(t, "access-2", s.AccessToken())

	_, err = s.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), refreshes.Load())

	require.NoError(t, s.SignOut(ctx))
	require.Empty(t, s.AccessToken())
	require.Empty(t, s.RefreshToken())

	_, err = s.CurrentSession(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)

	stale := c.NewSessionFromTokens("access-1", 0, "refresh-x", 3600)
	_, err = stale.CurrentSession(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
}
