package auth

import (
	"strings"
	"time"
)

// UserRole is the account's role
type UserRole = string

const (
	// RoleEditor can manage content but not accounts
	RoleEditor UserRole = "editor"
	// RoleAdmin is the privileged role created at bootstrap
	RoleAdmin UserRole = "admin"
)

// Account is the stored credential for one identity. Identity is unique.
type Account struct {
	ID           string    `json:"id,omitempty"`
	Identity     string    `json:"identity"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsPrivileged reports whether the account holds the bootstrap role.
func (a *Account) IsPrivileged() bool {
	return a != nil && a.Role == RoleAdmin
}

// NormalizeIdentity trims and lower cases an identity so lookups and
// attempt counters agree on one key.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
