package tenant

import "github.com/aixtiv/sallyport/internal/storage"

// Subscription tiers, least to most privileged.
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
	TierDiamond      = "diamond"
)

// Unlimited marks a quota with no ceiling.
const Unlimited = -1

// DefaultTier is applied when a tenant setup request omits the tier.
const DefaultTier = TierProfessional

var tierLimits = map[string]storage.TierLimits{
	TierStarter: {
		MaxUsers:          5,
		MaxMCPServers:     1,
		MaxRequestsPerDay: 1000,
		Features:          []string{"basic_auth", "standard_mcp"},
	},
	TierProfessional: {
		MaxUsers:          50,
		MaxMCPServers:     10,
		MaxRequestsPerDay: 10000,
		Features:          []string{"basic_auth", "standard_mcp", "custom_domains", "analytics"},
	},
	TierEnterprise: {
		MaxUsers:          1000,
		MaxMCPServers:     100,
		MaxRequestsPerDay: 100000,
		Features:          []string{"basic_auth", "standard_mcp", "custom_domains", "analytics", "sso", "custom_branding", "priority_support"},
	},
	TierDiamond: {
		MaxUsers:          Unlimited,
		MaxMCPServers:     Unlimited,
		MaxRequestsPerDay: Unlimited,
		Features:          []string{"*"},
	},
}

var tierScopes = map[string][]string{
	TierStarter:      {"basic_profile"},
	TierProfessional: {"basic_profile", "mcp_access"},
	TierEnterprise:   {"basic_profile", "mcp_access", "admin_access", "analytics"},
	TierDiamond:      {"basic_profile", "mcp_access", "admin_access", "analytics", "system_admin"},
}

// Valid reports whether tier is a known subscription tier.
func Valid(tier string) bool {
	_, ok := tierLimits[tier]
	return ok
}

// Limits returns the quota set for a tier. An unknown tier falls back to
// starter, matching the most restrictive interpretation.
func Limits(tier string) storage.TierLimits {
	limits, ok := tierLimits[tier]
	if !ok {
		limits = tierLimits[TierStarter]
	}
	out := limits
	out.Features = append([]string(nil), limits.Features...)
	return out
}

// Scopes returns the OAuth scopes granted by a tier, always including
// offline_access. An unknown tier grants offline_access only.
func Scopes(tier string) []string {
	scopes := []string{"offline_access"}
	return append(scopes, tierScopes[tier]...)
}
