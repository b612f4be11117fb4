package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

var (
	// ErrInvalidToken is returned by an Authenticator for any token that
	// fails verification or revocation checks.
	ErrInvalidToken = errors.New("httpx: invalid token")

	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("httpx: token expired")
)

// Authenticator turns a raw bearer token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*Principal, error)
}

// AuthnMiddleware authenticates the bearer token when one is present.
// Anonymous requests pass through. A bad token is rejected with 401 on
// routes marked Authorize and ignored everywhere else.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authz := r.Header.Get("Authorization")
			if authz == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := authenticate(ctx, a, authz)
			if err != nil {
				ep, _ := EndpointFromContext(ctx)
				if !ep.Authorize {
					next.ServeHTTP(w, r)
					return
				}

				slogx.FromContext(ctx).Debug("bearer authentication failed", slogx.Err(err))
				if errors.Is(err, ErrTokenExpired) {
					writeBearerError(w, "The Token is expired.")
					return
				}
				writeBearerError(w, "The Token is invalid.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

func authenticate(ctx context.Context, a Authenticator, header string) (*Principal, error) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidToken
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	return a.Authenticate(ctx, raw)
}

// RFC 6750 style challenge for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteProblem(w, http.StatusUnauthorized, desc)
}
