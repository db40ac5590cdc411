package model

import (
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
	RoleParent Role = "parent"
	RoleGuest  Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleParent, RoleGuest:
		return true
	}
	return false
}

// User represents a system user
type User struct {
	Base
	Name                string     `json:"name" db:"name"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Role                Role       `json:"role" db:"role"`
	HospitalAffiliation *string    `json:"hospitalAffiliation,omitempty" db:"hospital_affiliation"`
	LicenseNumber       *string    `json:"licenseNumber,omitempty" db:"license_number"`
	Specialization      *string    `json:"specialization,omitempty" db:"specialization"`
	PhoneNumber         *string    `json:"phoneNumber,omitempty" db:"phone_number"`
	IsActive            bool       `json:"isActive" db:"is_active"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// IsLocked reports whether the account is temporarily locked at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// DoctorFilter narrows the admin doctor listing.
type DoctorFilter struct {
	PageQuery
	Hospital       string `form:"hospital"`
	Specialization string `form:"specialization"`
	Search         string `form:"search"`
	Status         string `form:"status" binding:"omitempty,oneof=active inactive all"`
}

// ActiveOnly returns nil when the status filter does not restrict activity.
func (f DoctorFilter) ActiveOnly() *bool {
	switch f.Status {
	case "active":
		v := true
		return &v
	case "inactive":
		v := false
		return &v
	}
	return nil
}

type UpdateProfileRequest struct {
	Name                *string `json:"name" binding:"omitempty,trimmin=2,max=100"`
	HospitalAffiliation *string `json:"hospitalAffiliation" binding:"omitempty,trimmin=2,max=200"`
	Specialization      *string `json:"specialization" binding:"omitempty,max=100"`
	PhoneNumber         *string `json:"phoneNumber" binding:"omitempty,phone"`
}

type UpdateDoctorStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}
