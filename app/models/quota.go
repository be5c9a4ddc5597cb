package models

// Role is the subscription tier attached to a quota record.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleFree    Role = "free"
	RolePremium Role = "premium"
)

// Daily search ceilings per role. Policy values, not structure.
const (
	GuestQuota   = 3
	FreeQuota    = 10
	PremiumQuota = 50
)

// RoleTotal returns the quota ceiling for a role. Unknown roles get the guest
// ceiling so a bad row never grants extra searches.
func RoleTotal(role Role) int {
	switch role {
	case RolePremium:
		return PremiumQuota
	case RoleFree:
		return FreeQuota
	default:
		return GuestQuota
	}
}

// DefaultRole is the role assigned to a never-seen identity.
func DefaultRole(kind IdentityKind) Role {
	if kind == IdentityAuthenticated {
		return RoleFree
	}
	return RoleGuest
}

// QuotaRecord is the authoritative role + remaining-searches row for an
// identity. Remaining never exceeds RoleTotal(Role) after any mutation.
type QuotaRecord struct {
	IdentityKey string `json:"identity_key"`
	Role        Role   `json:"role"`
	Remaining   int    `json:"remaining"`
	Total       int    `json:"total"`
}
