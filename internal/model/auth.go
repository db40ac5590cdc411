package model

import (
	"errors"

	"github.com/google/uuid"
)

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountInactive    = errors.New("account inactive")
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Name                string `json:"name" binding:"required,trimmin=2,max=100"`
	Email               string `json:"email" binding:"required,email"`
	Password            string `json:"password" binding:"required,min=6,max=72"`
	Role                Role   `json:"role" binding:"omitempty,oneof=doctor parent guest"`
	HospitalAffiliation string `json:"hospitalAffiliation" binding:"omitempty,trimmin=2,max=200"`
	LicenseNumber       string `json:"licenseNumber" binding:"omitempty,max=50"`
	Specialization      string `json:"specialization" binding:"omitempty,max=100"`
	PhoneNumber         string `json:"phoneNumber" binding:"omitempty,phone"`
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	UserID    uuid.UUID
	Role      Role
	IPAddress string
	UserAgent string
}

// Is reports whether the actor holds one of roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
