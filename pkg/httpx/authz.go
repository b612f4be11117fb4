package httpx

import "net/http"

// Messages returned by RequirePermission.
const (
	MsgNotLoggedIn   = "Current user did not login to the application!"
	MsgNotAuthorized = "You are not authorized to access this resource."
)

// RequirePermission requires every listed permission on the principal.
// Permissions must already be resolved onto the principal upstream.
func RequirePermission(names ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteProblem(w, http.StatusUnauthorized, MsgNotLoggedIn)
				return
			}

			for _, name := range names {
				if !p.HasPermission(name) {
					WriteProblem(w, http.StatusForbidden, MsgNotAuthorized)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
