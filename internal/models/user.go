package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Admins can reach the queue debug surface and the audit log.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account in the writing assistant. The password is stored only
// as a bcrypt hash.
type User struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAdmin returns true for accounts with the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
