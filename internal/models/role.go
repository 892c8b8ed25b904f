package models

import (
	"fmt"
	"strings"
)

// Role is the authorization level of a user. Every authenticated session has exactly one.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleDealerAdmin Role = "dealer_admin"
	RoleBranchAdmin Role = "branch_admin"
	RoleDealerUser  Role = "dealer_user"
)

// Roles lists every valid role.
var Roles = []Role{RoleSuperAdmin, RoleDealerAdmin, RoleBranchAdmin, RoleDealerUser}

// ParseRole converts s into a [Role], rejecting values outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleDealerAdmin, RoleBranchAdmin, RoleDealerUser:
		return true
	default:
		return false
	}
}

// Label returns the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleDealerAdmin:
		return "Dealer Admin"
	case RoleBranchAdmin:
		return "Branch Admin"
	case RoleDealerUser:
		return "Dealer User"
	default:
		return "User"
	}
}

func (r Role) String() string { return string(r) }

// In reports whether r is a member of set.
func (r Role) In(set []Role) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}
