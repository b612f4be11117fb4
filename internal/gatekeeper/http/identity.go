package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type IdentityHandler struct {
	IdentityService *service.IdentityService
}

func (h *IdentityHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req gatekeepersdk.AuthenticateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.IdentityService.Authenticate(r.Context(), req.UserNameOrEmailAddress, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.AuthenticateResponse{
		AccessToken:                 res.AccessToken,
		ExpireInSeconds:             res.ExpireInSeconds,
		RefreshToken:                res.RefreshToken,
		RefreshTokenExpireInSeconds: res.RefreshTokenExpireInSeconds,
	})
}

func (h *IdentityHandler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req gatekeepersdk.RefreshTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.IdentityService.RefreshToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.RefreshTokenResponse{
		AccessToken:     res.AccessToken,
		ExpireInSeconds: res.ExpireInSeconds,
	})
}

// HandleSignOut revokes the caller's access and refresh tokens. Anonymous
// callers get 200 as well.
func (h *IdentityHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	if err := h.IdentityService.SignOut(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *IdentityHandler) HandleCurrentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	s, err := h.IdentityService.CurrentSession(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := gatekeepersdk.CurrentSessionResponse{
		AllPermissions:     flagMap(s.AllPermissions),
		GrantedPermissions: flagMap(s.GrantedPermissions),
	}
	if u := s.User; u != nil {
		out.User = &gatekeepersdk.SessionUser{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			UserName:  u.UserName,
			Email:     u.Email,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func flagMap(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
