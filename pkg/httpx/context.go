package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "principal"
	ctxKeyEndpoint  ctxKey = "endpoint"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Claims *jwtx.Claims

	// Permissions granted to the caller. Populated lazily by the permission
	// middleware and only for endpoints that require authorization.
	Permissions map[string]struct{}
}

// HasPermission reports whether name was granted to the principal.
func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Permissions[name]
	return ok
}

// AddPermissions merges names into the granted set. Existing entries stay.
func (p *Principal) AddPermissions(names ...string) {
	if p.Permissions == nil {
		p.Permissions = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		p.Permissions[n] = struct{}{}
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p, ok && p != nil
}

// Endpoint describes the route a request was matched to.
type Endpoint struct {
	Name string

	// Authorize marks routes that require an authenticated caller.
	Authorize bool

	// Permissions required by the route, all of them.
	Permissions []string
}

// WithEndpoint attaches route metadata to every request passing through.
// It must run before the authentication and permission middlewares.
func WithEndpoint(ep Endpoint) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ctxKeyEndpoint, ep)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EndpointFromContext returns the metadata attached by WithEndpoint.
func EndpointFromContext(ctx context.Context) (Endpoint, bool) {
	ep, ok := ctx.Value(ctxKeyEndpoint).(Endpoint)
	return ep, ok
}
