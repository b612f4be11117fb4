package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type RolesHandler struct {
	RoleService *service.RoleService
}

func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	req, err := listRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.RoleService.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := gatekeepersdk.PagedResult[gatekeepersdk.Role]{
		TotalCount: page.TotalCount,
		Items:      make([]gatekeepersdk.Role, 0, len(page.Items)),
	}
	for _, role := range page.Items {
		out.Items = append(out.Items, toRole(role, nil))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet returns the role with its granted permissions so an edit form
// can be filled from one call.
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	role, err := h.RoleService.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	granted, err := h.RoleService.GetPermissions(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.RoleResult{Role: toRole(role, granted)})
}

func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeRole(w, r)
	if !ok {
		return
	}

	role, err := h.RoleService.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.RoleResult{Role: toRole(role, nil)})
}

func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeRole(w, r)
	if !ok {
		return
	}

	role, err := h.RoleService.Update(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.RoleResult{Role: toRole(role, nil)})
}

func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.RoleService.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *RolesHandler) HandleGetPermissions(w http.ResponseWriter, r *http.Request) {
	names, err := h.RoleService.GetPermissions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatekeepersdk.PermissionsResponse{Items: nonNil(names)})
}

func (h *RolesHandler) HandleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := httpx.DecodeJSON(r, &names); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.RoleService.UpdatePermissions(r.Context(), r.PathValue("id"), names); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *RolesHandler) HandleResetPermissions(w http.ResponseWriter, r *http.Request) {
	if err := h.RoleService.ResetPermissions(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func decodeRole(w http.ResponseWriter, r *http.Request) (service.RoleInput, bool) {
	var req gatekeepersdk.CreateOrEditRole
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return service.RoleInput{}, false
	}
	return service.RoleInput{
		ID:                 req.ID,
		Name:               req.Name,
		IsDefault:          req.IsDefault,
		GrantedPermissions: req.GrantedPermissions,
	}, true
}

func toRole(r domain.Role, granted []string) gatekeepersdk.Role {
	return gatekeepersdk.Role{
		ID:                   r.ID,
		Name:                 r.Name,
		IsStatic:             r.IsStatic,
		IsDefault:            r.IsDefault,
		GrantedPermissions:   granted,
		CreationTime:         r.CreatedAt,
		LastModificationTime: r.UpdatedAt,
	}
}
