package types

import "time"

// Role is the authorization level of a user account.
type Role string

// Supported roles.
const (
	RoleClient     Role = "CLIENT"
	RoleAdmin      Role = "ADMIN"
	RoleAnalyst    Role = "ANALYST"
	RoleSupervisor Role = "SUPERVISOR"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin, RoleAnalyst, RoleSupervisor:
		return true
	}
	return false
}

// Privileged reports whether the role bypasses ownership checks.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address, unique case-insensitively.
	// It is lowercased at the API boundary before it reaches storage.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// Company is the organization the user belongs to, if any.
	Company string `json:"company,omitempty" db:"company"`

	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Active indicates whether the account may log in.
	// Accounts are deactivated, never hard-deleted.
	Active bool `json:"active" db:"active"`

	// Verified indicates whether the email address has been confirmed.
	Verified bool `json:"verified" db:"verified"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the authenticated caller threaded explicitly into every
// service operation. The zero value is an anonymous caller.
type Identity struct {
	UserID int
	Role   Role
}

// Anonymous reports whether the identity belongs to no authenticated user.
func (i Identity) Anonymous() bool {
	return i.UserID == 0
}
