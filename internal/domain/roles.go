package domain

// Role is the quota tier a request is evaluated under.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RolePremium  Role = "PREMIUM"
	RoleAdmin    Role = "ADMIN"
)

// JWT role claims understood by EffectiveRole.
const (
	ClaimRoleAdmin   = "ROLE_ADMIN"
	ClaimRolePremium = "ROLE_PREMIUM"
	ClaimRoleUser    = "ROLE_USER"
)

// HasRole reports whether userRoles contains targetRole.
func HasRole(userRoles []string, targetRole string) bool {
	for _, role := range userRoles {
		if role == targetRole {
			return true
		}
	}
	return false
}

// EffectiveRole maps token roles and the account entitlement to a quota role.
// Admin wins, then premium from either the token or the entitlement.
func EffectiveRole(claimRoles []string, entitlement EntitlementStatus) Role {
	switch {
	case HasRole(claimRoles, ClaimRoleAdmin):
		return RoleAdmin
	case HasRole(claimRoles, ClaimRolePremium), entitlement.GrantsPremium():
		return RolePremium
	default:
		return RoleCustomer
	}
}
