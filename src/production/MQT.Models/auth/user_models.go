package auth_models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User owns devices and plants. Admins can read every user's data.
type User struct {
	UserID    string    `json:"id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email,omitempty" db:"email"`
	Password  string    `json:"-" db:"password"` // bcrypt hash, never serialized
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser builds an active user; passwordHash must already be hashed
func NewUser(username, email, passwordHash, role string) *User {
	now := time.Now().UTC()
	return &User{
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
