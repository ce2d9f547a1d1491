package auth

// UserRole is the user's role
type UserRole string

const (
	// RoleAssociate is the default role granted to new signups
	RoleAssociate UserRole = "ASSOCIATE"
	// RoleMember is a fully registered member
	RoleMember UserRole = "MEMBER"
	// RoleOperator can manage community content
	RoleOperator UserRole = "OPERATOR"
	// RoleAdmin has full administrative access
	RoleAdmin UserRole = "ADMIN"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAssociate, RoleMember, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleAssociate: 0,
		RoleMember:    1,
		RoleOperator:  2,
		RoleAdmin:     3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleAssociate,
		RoleMember,
		RoleOperator,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
