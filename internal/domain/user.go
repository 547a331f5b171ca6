package domain

import (
	"strings"
	"time"
)

// UserStatus represents active-lifecycle states for a principal. Deletion is
// tracked separately through User.DeletedAt.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusPending   UserStatus = "pending"
	UserStatusSuspended UserStatus = "suspended"
)

// WireStatusDeleted is the status value clients use for tombstoned accounts.
const WireStatusDeleted = "deleted"

// Valid reports whether s is a known lifecycle status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusPending, UserStatusSuspended:
		return true
	}
	return false
}

// Deactivates reports whether moving an account to s locks its owner out.
// Only active accounts can authenticate, so every other status does.
func (s UserStatus) Deactivates() bool {
	return s != UserStatusActive
}

// User is a principal who can authenticate and act.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Department   string
	PasswordHash string
	Assignment   RoleAssignment
	Permissions  []string
	Status       UserStatus
	LastLoginAt  *time.Time
	CreatedBy    *string
	UpdatedBy    *string
	DeletedBy    *string
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins the name parts.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Tombstoned reports whether the account was soft-deleted.
func (u *User) Tombstoned() bool {
	return u.DeletedAt != nil
}

// WireStatus returns the status as exposed to clients.
func (u *User) WireStatus() string {
	if u.Tombstoned() {
		return WireStatusDeleted
	}
	return string(u.Status)
}

// NormalizeEmail lowercases and trims an email for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
