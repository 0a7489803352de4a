package types

import (
	"strings"
	"time"
)

// Role is the authorization tier of a user account.
type Role string

// Supported roles. Negeri and Bahagian are the hybrid reviewer tiers,
// PPD and User are reporters.
const (
	RoleAdmin    Role = "Admin"
	RoleNegeri   Role = "Negeri"
	RoleBahagian Role = "Bahagian"
	RolePPD      Role = "PPD"
	RoleUser     Role = "User"
)

// Roles lists every role in descending privilege order.
var Roles = []Role{RoleAdmin, RoleNegeri, RoleBahagian, RolePPD, RoleUser}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(raw string) (Role, bool) {
	raw = strings.TrimSpace(raw)
	for _, role := range Roles {
		if strings.EqualFold(raw, string(role)) {
			return role, true
		}
	}
	return "", false
}

// User represents an account in the portal.
// It contains identity, role, administrative assignment and audit metadata.
type User struct {
	// ID is the opaque identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the login name of the user.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role determines route visibility and server-side authorization scope.
	Role Role `json:"role" db:"role"`

	// StateName is the Negeri the user is assigned to. Empty for national
	// accounts such as Admin or a division (Bahagian) reviewer.
	StateName string `json:"stateName,omitempty" db:"state_name"`

	// PPD is the district office the user reports for. Only meaningful
	// for the PPD role.
	PPD string `json:"ppd,omitempty" db:"ppd"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// MustChangePassword is set for accounts created with a temporary
	// password and cleared on the first password change.
	MustChangePassword bool `json:"mustChangePassword" db:"must_change_password"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Principal is the resolved identity of the caller of a core operation.
// It is passed explicitly into every service call.
type Principal struct {
	UserID    string
	Role      Role
	StateName string
}

// PrincipalOf builds the principal for a stored user.
func PrincipalOf(u User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, StateName: u.StateName}
}
