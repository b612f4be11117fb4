package gatekeepersdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListRoles returns one page of roles.
// Requires: Pages.Administration.Roles
func (s *Session) ListRoles(ctx context.Context, opts ListOptions) (*PagedResult[Role], error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, opts.encode("/api/v1/role"), nil)
	if err != nil {
		return nil, err
	}

	var page PagedResult[Role]
	if err := decodeJSON(resp, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetRole returns a role together with its granted permissions.
// Requires: Pages.Administration.Roles
func (s *Session) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.roleRequest(ctx, http.MethodGet, rolePath(id), nil)
}

// CreateRole creates a role.
// Requires: Pages.Administration.Roles.Create
func (s *Session) CreateRole(ctx context.Context, in CreateOrEditRole) (*Role, error) {
	return s.roleRequest(ctx, http.MethodPost, "/api/v1/role", in)
}

// UpdateRole updates the role identified by in.ID.
// Requires: Pages.Administration.Roles.Edit
func (s *Session) UpdateRole(ctx context.Context, in CreateOrEditRole) (*Role, error) {
	return s.roleRequest(ctx, http.MethodPut, "/api/v1/role", in)
}

// DeleteRole deletes a role that is not static.
// Requires: Pages.Administration.Roles.Delete
func (s *Session) DeleteRole(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, rolePath(id), nil)
	if err != nil {
		return err
	}
	return checkStatusOK(resp)
}

// GetRolePermissions returns the permissions a role grants.
// Requires: Pages.Administration.Roles.Edit
func (s *Session) GetRolePermissions(ctx context.Context, id string) ([]string, error) {
	return s.getPermissions(ctx, rolePath(id)+"/permissions")
}

// UpdateRolePermissions makes names the role's granted permissions.
// Requires: Pages.Administration.Roles.Edit
func (s *Session) UpdateRolePermissions(ctx context.Context, id string, names []string) error {
	return s.putPermissions(ctx, rolePath(id)+"/permissions", names)
}

// ResetRolePermissions drops every role override.
// Requires: Pages.Administration.Roles.Edit
func (s *Session) ResetRolePermissions(ctx context.Context, id string) error {
	return s.putPermissions(ctx, rolePath(id)+"/reset-permissions", nil)
}

func rolePath(id string) string {
	return "/api/v1/role/" + url.PathEscape(id)
}

func (s *Session) roleRequest(ctx context.Context, method, path string, body any) (*Role, error) {
	resp, err := s.doAuthRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var out RoleResult
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.Role, nil
}
