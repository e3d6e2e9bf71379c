package auth

import "strings"

// roleHierarchy ranks roles; unknown roles rank below every known role
var roleHierarchy = map[UserRole]int{
	RoleEditor: 1,
	RoleAdmin:  2,
}

// IsValidRole checks if the role is one of the predefined roles
func IsValidRole(role UserRole) bool {
	_, ok := roleHierarchy[role]
	return ok
}

// IsAtLeast checks if role meets the minimum required level
func IsAtLeast(role, minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[role]
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
		RoleEditor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, IsValidRole(role)
}

// HasRole reports whether the session carries role
func (s *Session) HasRole(role UserRole) bool {
	return s != nil && strings.EqualFold(s.Role, role)
}

// IsAtLeast reports whether the session's role meets minRole
func (s *Session) IsAtLeast(minRole UserRole) bool {
	return s != nil && IsAtLeast(s.Role, minRole)
}
