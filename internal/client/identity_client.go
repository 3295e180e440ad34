package client

import (
	"context"
	"net/url"
	"time"

	"github.com/ledgerline/be-approvals/internal/workflow"
)

// IdentityClient resolves roles from the platform identity service.
// Unknown actors resolve to no roles rather than an error, so authorization
// checks fail closed without surfacing identity lookups as engine faults.
type IdentityClient struct {
	http *httpClient
}

// NewIdentityClient creates a client for the identity service.
func NewIdentityClient(baseURL string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{http: newHTTPClient(baseURL, timeout)}
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

type roleMembersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// GetActorRoles returns the roles an actor holds for a tenant. Role names
// the engine does not recognize are dropped.
func (c *IdentityClient) GetActorRoles(ctx context.Context, tenantID, actorID string) ([]workflow.Role, error) {
	path := "/api/v1/users/roles?tenant_id=" + url.QueryEscape(tenantID) +
		"&user_id=" + url.QueryEscape(actorID)

	var resp rolesResponse
	if err := c.http.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	var roles []workflow.Role
	for _, name := range resp.Roles {
		role, err := workflow.ParseRole(name)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// HasUsersWithRole reports whether any user can satisfy the role for the
// tenant, counting users holding the role or any higher one.
func (c *IdentityClient) HasUsersWithRole(ctx context.Context, tenantID string, role workflow.Role) (bool, error) {
	path := "/api/v1/users/by-role?tenant_id=" + url.QueryEscape(tenantID) +
		"&role=" + url.QueryEscape(string(role)) + "&include_inherited=true"

	var resp roleMembersResponse
	if err := c.http.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return len(resp.UserIDs) > 0, nil
}
