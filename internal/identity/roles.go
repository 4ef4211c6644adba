package identity

import (
	"sort"

	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/internal/tenant"
)

// SAO group roles, least to most privileged.
const (
	RoleOnyx     = "Onyx_SAO_Group"
	RoleOpal     = "Opal_SAO_Group"
	RoleSapphire = "Sapphire_SAO_Group"
	RoleEmerald  = "Emerald_SAO_Group"
	RoleDiamond  = "Diamond_SAO_Group"
)

// DefaultRole is assigned when a user setup request omits the role. An
// unknown role also falls back to Onyx permissions.
const DefaultRole = RoleOnyx

var rolePermissions = map[string]storage.Permissions{
	RoleDiamond: {
		SecretsAllowed:       true,
		OAuthAllowed:         true,
		ConfigAllowed:        true,
		AdminAccess:          true,
		ExperimentalFeatures: true,
	},
	RoleEmerald: {
		SecretsAllowed: true,
		OAuthAllowed:   true,
		ConfigAllowed:  true,
		AdminAccess:    true,
	},
	RoleSapphire: {
		OAuthAllowed:  true,
		ConfigAllowed: true,
		AdminAccess:   true,
	},
	RoleOpal: {
		OAuthAllowed: true,
		AdminAccess:  true,
	},
	RoleOnyx: {},
}

// PermissionsFor computes the effective permission set from a role and the
// tenant's tier. Starter caps secrets and experimental features regardless of
// role; diamond grants everything regardless of role.
func PermissionsFor(role, tier string) storage.Permissions {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[DefaultRole]
	}

	switch tier {
	case tenant.TierStarter:
		perms.SecretsAllowed = false
		perms.ExperimentalFeatures = false
	case tenant.TierDiamond:
		perms = storage.Permissions{
			SecretsAllowed:       true,
			OAuthAllowed:         true,
			ConfigAllowed:        true,
			AdminAccess:          true,
			ExperimentalFeatures: true,
		}
	}
	return perms
}

// ScopeMCPFull grants access to the full MCP surface. It is appended only
// when the user has MCP access and the tenant has MCP enabled.
const ScopeMCPFull = "sallyport.mcp.full"

var baseScopes = []string{"openid", "profile", "email"}

// ScopesFor derives the deduplicated, sorted scope set for a user: the OIDC
// base scopes, the tier scopes, any extra scopes from the request, and the
// MCP scope when both the user and the tenant allow it.
func ScopesFor(tier string, extra []string, mcpAllowed bool) []string {
	seen := make(map[string]struct{})
	add := func(scopes []string) {
		for _, s := range scopes {
			if s != "" {
				seen[s] = struct{}{}
			}
		}
	}
	add(baseScopes)
	add(tenant.Scopes(tier))
	add(extra)
	if mcpAllowed {
		seen[ScopeMCPFull] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
