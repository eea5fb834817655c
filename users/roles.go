package users

import "strings"

// Role is the closed set of roles the client routes on. RoleUnknown covers
// missing or unrecognised server values.
type Role int

const (
	RoleUnknown Role = iota
	RoleLandlord
	RoleTenant
	RoleBusiness
	RoleCaretaker
	RoleAdmin

	roleCount
)

var roleNames = [roleCount]string{
	RoleUnknown:   "",
	RoleLandlord:  "LANDLORD",
	RoleTenant:    "TENANT",
	RoleBusiness:  "BUSINESS",
	RoleCaretaker: "CARETAKER",
	RoleAdmin:     "ADMIN",
}

// Roles returns every known role, RoleUnknown included.
func Roles() []Role {
	roles := make([]Role, 0, roleCount)
	for r := RoleUnknown; r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// ParseRole trims and upper-cases s before matching it.
func ParseRole(s string) Role {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return RoleUnknown
	}
	for r := RoleLandlord; r < roleCount; r++ {
		if roleNames[r] == s {
			return r
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if r < 0 || r >= roleCount {
		return "UNKNOWN"
	}
	if r == RoleUnknown {
		return "UNKNOWN"
	}
	return roleNames[r]
}

// Count is the number of Role values, for tables indexed by Role.
const Count = int(roleCount)
