/*
Package gatekeepersdk is a Go client for the Gatekeeper service.

# SDKClient vs Session

SDKClient covers the anonymous endpoints and signs in:

	client := gatekeepersdk.NewSDKClient("https://gatekeeper.example.com")

	health, err := client.GetReadiness(ctx)

	session, err := client.Authenticate(ctx, "admin", password)

Session carries the token pair and refreshes the access token shortly
before it expires:

	me, err := session.CurrentSession(ctx)
	if me.GrantedPermissions["Pages.Administration.Users"] {
		users, err := session.ListUsers(ctx, gatekeepersdk.ListOptions{MaxResultCount: 50})
	}

	err = session.SignOut(ctx)

# Errors

Every non-success response is returned as *APIError carrying the status
code and the detail message written by the server:

	var apiErr *gatekeepersdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
		// missing permission
	}

The package also holds the JSON request and response types shared with
the server, so both sides agree on the wire format.
*/
package gatekeepersdk
