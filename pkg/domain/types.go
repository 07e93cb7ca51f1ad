package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
)

// ParseUserRole accepts the two known roles; empty input means student.
func ParseUserRole(raw string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(RoleStudent), "user":
		return RoleStudent, true
	case string(RoleInstructor):
		return RoleInstructor, true
	default:
		return "", false
	}
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"userName"`
	Email        string    `json:"userEmail"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the caller as asserted by a verified bearer token.
type Identity struct {
	ID    string   `json:"id"`
	Name  string   `json:"userName"`
	Email string   `json:"userEmail"`
	Role  UserRole `json:"role"`
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func (i Identity) IsInstructor() bool {
	return i.Role == RoleInstructor
}
