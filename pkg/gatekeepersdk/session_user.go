package gatekeepersdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListUsers returns one page of users.
// Requires: Pages.Administration.Users
func (s *Session) ListUsers(ctx context.Context, opts ListOptions) (*PagedResult[User], error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, opts.encode("/api/v1/user"), nil)
	if err != nil {
		return nil, err
	}

	var page PagedResult[User]
	if err := decodeJSON(resp, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetUser returns a user with their role names.
// Requires: Pages.Administration.Users
func (s *Session) GetUser(ctx context.Context, id string) (*User, error) {
	return s.userRequest(ctx, http.MethodGet, userPath(id), nil)
}

// CreateUser creates a user.
// Requires: Pages.Administration.Users.Create
func (s *Session) CreateUser(ctx context.Context, in CreateOrEditUser) (*User, error) {
	return s.userRequest(ctx, http.MethodPost, "/api/v1/user", in)
}

// UpdateUser updates the user identified by in.ID.
// Requires: Pages.Administration.Users.Edit
func (s *Session) UpdateUser(ctx context.Context, in CreateOrEditUser) (*User, error) {
	return s.userRequest(ctx, http.MethodPut, "/api/v1/user", in)
}

// DeleteUser soft deletes a user and revokes their sessions.
// Requires: Pages.Administration.Users.Delete
func (s *Session) DeleteUser(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, userPath(id), nil)
	if err != nil {
		return err
	}
	return checkStatusOK(resp)
}

// GetUserPermissions returns a user's effective permissions.
// Requires: Pages.Administration.Users.ChangePermissions
func (s *Session) GetUserPermissions(ctx context.Context, id string) ([]string, error) {
	return s.getPermissions(ctx, userPath(id)+"/permissions")
}

// UpdateUserPermissions makes names the user's effective permissions by
// writing overrides against what their roles grant.
// Requires: Pages.Administration.Users.ChangePermissions
func (s *Session) UpdateUserPermissions(ctx context.Context, id string, names []string) error {
	return s.putPermissions(ctx, userPath(id)+"/permissions", names)
}

// ResetUserPermissions drops every user override.
// Requires: Pages.Administration.Users.ChangePermissions
func (s *Session) ResetUserPermissions(ctx context.Context, id string) error {
	return s.putPermissions(ctx, userPath(id)+"/reset-permissions", nil)
}

func userPath(id string) string {
	return "/api/v1/user/" + url.PathEscape(id)
}

func (s *Session) userRequest(ctx context.Context, method, path string, body any) (*User, error) {
	resp, err := s.doAuthRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var out UserResult
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (s *Session) getPermissions(ctx context.Context, path string) ([]string, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out PermissionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// putPermissions sends names as a bare JSON array. A nil slice sends no
// body, which the reset endpoints expect.
func (s *Session) putPermissions(ctx context.Context, path string, names []string) error {
	var body any
	if names != nil {
		body = names
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	return checkStatusOK(resp)
}
