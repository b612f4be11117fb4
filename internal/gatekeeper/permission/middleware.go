package permission

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Granter returns the effective permissions of a user.
type Granter interface {
	GetGrantedPermissions(ctx context.Context, userID string) (Set, error)
}

// Middleware adds the caller's permissions to the principal on routes
// marked Authorize. Anonymous requests and other routes are untouched.
// Place it after authentication and before httpx.RequirePermission.
func Middleware(g Granter) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			p, ok := httpx.PrincipalFromContext(ctx)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if ep, _ := httpx.EndpointFromContext(ctx); !ep.Authorize {
				next.ServeHTTP(w, r)
				return
			}

			granted, err := g.GetGrantedPermissions(ctx, p.UserID)
			switch {
			case err == nil:
				p.AddPermissions(granted.Names()...)
			case domain.KindOf(err) == domain.KindBadRequest:
				// The user vanished after the token was validated; grant
				// nothing and let the authorization check refuse.
				slogx.FromContext(ctx).Warn("permission resolution rejected", slogx.Err(err))
			default:
				slogx.FromContext(ctx).Error("permission resolution failed", slogx.Err(err))
				httpx.WriteProblem(w, http.StatusInternalServerError, "An unexpected error occurred")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
