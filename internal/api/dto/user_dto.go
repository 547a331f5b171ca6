package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RegisterRequest payload for self-service signup.
type RegisterRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Password   string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is the wire form of an account. The status field carries
// "deleted" for tombstoned accounts.
type UserResponse struct {
	ID          string        `json:"id"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone,omitempty"`
	Department  string        `json:"department,omitempty"`
	Role        domain.RoleID `json:"role"`
	UserType    domain.RoleID `json:"userType"`
	Permissions []string      `json:"permissions"`
	Status      string        `json:"status"`
	LastLogin   *time.Time    `json:"lastLogin"`
	DeletedAt   *time.Time    `json:"deletedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// NewUserResponse maps a user to its wire form. The password hash is never
// exposed.
func NewUserResponse(u *domain.User) UserResponse {
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	return UserResponse{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Phone:       u.Phone,
		Department:  u.Department,
		Role:        u.Assignment.Role,
		UserType:    u.Assignment.UserType,
		Permissions: perms,
		Status:      u.WireStatus(),
		LastLogin:   u.LastLoginAt,
		DeletedAt:   u.DeletedAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CreateUserRequest is the admin create payload.
type CreateUserRequest struct {
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Department  string            `json:"department"`
	Password    string            `json:"password"`
	Role        domain.RoleID     `json:"role"`
	Permissions []string          `json:"permissions"`
	Status      domain.UserStatus `json:"status"`
}

// UpdateUserRequest is the admin partial edit payload.
type UpdateUserRequest struct {
	FirstName   *string        `json:"firstName"`
	LastName    *string        `json:"lastName"`
	Email       *string        `json:"email"`
	Phone       *string        `json:"phone"`
	Department  *string        `json:"department"`
	Password    *string        `json:"password"`
	Role        *domain.RoleID `json:"role"`
	Permissions *[]string      `json:"permissions"`
	Status      *string        `json:"status"`
}

// BulkUpdateRequest payload for PATCH /admin/users/bulk-update.
type BulkUpdateRequest struct {
	UserIDs    []string       `json:"userIds"`
	UpdateData BulkUpdateData `json:"updateData"`
}

// BulkUpdateData is the mutation applied to every listed user.
type BulkUpdateData struct {
	Status     *string        `json:"status"`
	Role       *domain.RoleID `json:"role"`
	Department *string        `json:"department"`
}

// BulkDeleteRequest payload for DELETE /admin/users/bulk-delete.
type BulkDeleteRequest struct {
	UserIDs []string `json:"userIds"`
}

// RoleResponse describes a catalog role.
type RoleResponse struct {
	ID          domain.RoleID `json:"id"`
	DisplayName string        `json:"displayName"`
	Permissions []string      `json:"permissions"`
	AdminTier   bool          `json:"adminTier"`
	SupportTier bool          `json:"supportTier"`
}
