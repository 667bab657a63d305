package models

import (
	"time"
)

const (
	RoleMember    = "member"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string
	TwoFactorEnabled  bool
	PasswordChangedAt *time.Time // tokens issued before this are rejected
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserResponse is the public profile returned by /me.
type UserResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}
