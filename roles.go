package songbook

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is a regular listener account (view, favorite)
	RoleUser UserRole = "user"
	// RoleMusician can publish songs and chord sheets
	RoleMusician UserRole = "musician"
	// RoleModerator reviews submitted content
	RoleModerator UserRole = "moderator"
	// RoleAdmin administers the catalog and accounts
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleMusician, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleIsAtLeast checks if role meets the minimum required level
func RoleIsAtLeast(r, minRole UserRole) bool {
	hierarchy := map[UserRole]int{
		RoleUser:      0,
		RoleMusician:  1,
		RoleModerator: 2,
		RoleAdmin:     3,
	}

	currentLevel, ok := hierarchy[r]
	if !ok {
		return false
	}

	minLevel, ok := hierarchy[minRole]
	if !ok {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleMusician,
		RoleModerator,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
