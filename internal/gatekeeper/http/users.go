package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type UsersHandler struct {
	UserService *service.UserService
}

func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	req, err := listRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.UserService.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := gatekeepersdk.PagedResult[gatekeepersdk.User]{
		TotalCount: page.TotalCount,
		Items:      make([]gatekeepersdk.User, 0, len(page.Items)),
	}
	for _, d := range page.Items {
		out.Items = append(out.Items, toUser(d))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.UserService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.UserResult{User: toUser(d)})
}

func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeUser(w, r)
	if !ok {
		return
	}

	d, err := h.UserService.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.UserResult{User: toUser(d)})
}

func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeUser(w, r)
	if !ok {
		return
	}

	d, err := h.UserService.Update(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.UserResult{User: toUser(d)})
}

func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())
	if err := h.UserService.Delete(r.Context(), r.PathValue("id"), p.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *UsersHandler) HandleGetPermissions(w http.ResponseWriter, r *http.Request) {
	names, err := h.UserService.GetPermissions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.PermissionsResponse{Items: nonNil(names)})
}

func (h *UsersHandler) HandleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := httpx.DecodeJSON(r, &names); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.UserService.UpdatePermissions(r.Context(), r.PathValue("id"), names); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *UsersHandler) HandleResetPermissions(w http.ResponseWriter, r *http.Request) {
	if err := h.UserService.ResetPermissions(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func decodeUser(w http.ResponseWriter, r *http.Request) (service.UserInput, bool) {
	var req gatekeepersdk.CreateOrEditUser
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return service.UserInput{}, false
	}
	return service.UserInput{
		ID:              req.ID,
		UserName:        req.UserName,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Roles:           req.Roles,
	}, true
}

func toUser(d service.UserDetail) gatekeepersdk.User {
	u := d.User
	return gatekeepersdk.User{
		ID:                   u.ID,
		UserName:             u.UserName,
		FirstName:            u.FirstName,
		LastName:             u.LastName,
		Email:                u.Email,
		Roles:                nonNil(d.Roles),
		CreationTime:         u.CreatedAt,
		LastModificationTime: u.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
