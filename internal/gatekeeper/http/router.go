package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Store
	cache   cache.Store
	metrics *metrics.Metrics

	Authenticator   httpx.Authenticator
	Permissions     permission.Granter
	IdentityService *service.IdentityService
	UserService     *service.UserService
	RoleService     *service.RoleService
}

// NewRouter creates a router. m may be nil, which disables /metrics and
// request instrumentation.
func NewRouter(
	buildVersion string,
	st store.Store,
	c cache.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        c,
		metrics:      m,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerIdentities()
	r.registerUsers()
	r.registerRoles()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.metrics.Instrument(r.Mux), r.middlewares...).ServeHTTP(w, req)
}

// route registers h behind the per-endpoint chain: endpoint metadata,
// optional bearer authentication, permission resolution, the permission
// check for Authorize endpoints and finally the rate limit.
func (r *Router) route(pattern string, ep httpx.Endpoint, h http.HandlerFunc, limit httpx.Middleware) {
	mws := []httpx.Middleware{
		httpx.WithEndpoint(ep),
		httpx.AuthnMiddleware(r.Authenticator),
		permission.Middleware(r.Permissions),
	}
	if ep.Authorize {
		mws = append(mws, httpx.RequirePermission(ep.Permissions...))
	}
	mws = append(mws, limit)

	r.Mux.Handle(pattern, httpx.Chain(h, mws...))
}

func authorized(name string, permissions ...string) httpx.Endpoint {
	return httpx.Endpoint{Name: name, Authorize: true, Permissions: permissions}
}

func anonymous(name string) httpx.Endpoint {
	return httpx.Endpoint{Name: name}
}

func (r *Router) registerIdentities() {
	h := &IdentityHandler{IdentityService: r.IdentityService}

	// Credential guessing is limited per client address.
	r.route("POST /api/v1/identities/authenticate", anonymous("identities.authenticate"),
		h.HandleAuthenticate, httpx.RateLimitByIP(httpx.StrictLimit))
	r.route("POST /api/v1/identities/refresh-token", anonymous("identities.refresh-token"),
		h.HandleRefreshToken, httpx.RateLimitByIP(httpx.ModerateLimit))
	r.route("POST /api/v1/identities/sign-out", anonymous("identities.sign-out"),
		h.HandleSignOut, httpx.RateLimitByIP(httpx.ModerateLimit))
	r.route("GET /api/v1/identities/current-session", anonymous("identities.current-session"),
		h.HandleCurrentSession, httpx.RateLimitByIP(httpx.LenientLimit))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}
	limit := httpx.RateLimitByUser(httpx.ModerateLimit)

	r.route("GET /api/v1/user", authorized("users.list", permission.Users), h.HandleList, limit)
	r.route("GET /api/v1/user/{id}", authorized("users.get", permission.Users), h.HandleGet, limit)
	r.route("POST /api/v1/user", authorized("users.create", permission.UsersCreate), h.HandleCreate, limit)
	r.route("PUT /api/v1/user", authorized("users.update", permission.UsersEdit), h.HandleUpdate, limit)
	r.route("DELETE /api/v1/user/{id}", authorized("users.delete", permission.UsersDelete), h.HandleDelete, limit)

	r.route("GET /api/v1/user/{id}/permissions",
		authorized("users.permissions.get", permission.UsersChangePermissions), h.HandleGetPermissions, limit)
	r.route("PUT /api/v1/user/{id}/permissions",
		authorized("users.permissions.update", permission.UsersChangePermissions), h.HandleUpdatePermissions, limit)
	r.route("PUT /api/v1/user/{id}/reset-permissions",
		authorized("users.permissions.reset", permission.UsersChangePermissions), h.HandleResetPermissions, limit)
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RoleService: r.RoleService}
	limit := httpx.RateLimitByUser(httpx.ModerateLimit)

	r.route("GET /api/v1/role", authorized("roles.list", permission.Roles), h.HandleList, limit)
	r.route("GET /api/v1/role/{id}", authorized("roles.get", permission.Roles), h.HandleGet, limit)
	r.route("POST /api/v1/role", authorized("roles.create", permission.RolesCreate), h.HandleCreate, limit)
	r.route("PUT /api/v1/role", authorized("roles.update", permission.RolesEdit), h.HandleUpdate, limit)
	r.route("DELETE /api/v1/role/{id}", authorized("roles.delete", permission.RolesDelete), h.HandleDelete, limit)

	r.route("GET /api/v1/role/{id}/permissions",
		authorized("roles.permissions.get", permission.RolesEdit), h.HandleGetPermissions, limit)
	r.route("PUT /api/v1/role/{id}/permissions",
		authorized("roles.permissions.update", permission.RolesEdit), h.HandleUpdatePermissions, limit)
	r.route("PUT /api/v1/role/{id}/reset-permissions",
		authorized("roles.permissions.reset", permission.RolesEdit), h.HandleResetPermissions, limit)
}

func (r *Router) registerSystem() {
	// Monitoring may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
