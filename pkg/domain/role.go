package domain

import dErrors "cratekeeper/pkg/domain-errors"

// Role identifies the organizational role of an acting user. The capability
// table keys on roles; no runtime role hierarchy exists.
type Role string

const (
	// RoleSystemAdmin has read access across all units but never performs
	// workflow transitions.
	RoleSystemAdmin Role = "System Admin"
	// RoleSectionHead approves, rejects, and sends back requests in its unit.
	RoleSectionHead Role = "Section Head"
	// RoleStoreHead manages physical custody: allocation, issue, return.
	RoleStoreHead Role = "Store Head"
	// RoleUser creates requests and resubmits sent-back ones.
	RoleUser Role = "User"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSystemAdmin, RoleSectionHead, RoleStoreHead, RoleUser:
		return Role(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
}

func (r Role) String() string { return string(r) }

// CrossUnit reports whether the role's visibility spans every unit scope.
func (r Role) CrossUnit() bool { return r == RoleSystemAdmin }
