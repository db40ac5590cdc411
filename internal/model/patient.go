package model

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	Base
	Name           string     `json:"name" db:"name"`
	DateOfBirth    time.Time  `json:"dateOfBirth" db:"date_of_birth"`
	Allergies      string     `json:"allergies" db:"allergies"`
	MedicalHistory string     `json:"medicalHistory" db:"medical_history"`
	DoctorID       uuid.UUID  `json:"doctorId" db:"doctor_id"`
	ParentID       *uuid.UUID `json:"parentId,omitempty" db:"parent_id"`
}

// PatientFilter scopes a patient listing. Zero values mean "any".
type PatientFilter struct {
	DoctorID *uuid.UUID
	ParentID *uuid.UUID
}

type CreatePatientRequest struct {
	Name           string `json:"name" binding:"required,trimmin=2,max=50"`
	DateOfBirth    string `json:"dateOfBirth" binding:"required,datetime=2006-01-02,notfuture"`
	Allergies      string `json:"allergies" binding:"max=1000"`
	MedicalHistory string `json:"medicalHistory" binding:"max=5000"`
	ParentEmail    string `json:"parentEmail" binding:"omitempty,email"`
	// DoctorID assigns the patient to another doctor. Only admins may set it.
	DoctorID string `json:"doctorId" binding:"omitempty,uuid"`
}

type UpdatePatientRequest struct {
	Name           *string `json:"name" binding:"omitempty,trimmin=2,max=50"`
	DateOfBirth    *string `json:"dateOfBirth" binding:"omitempty,datetime=2006-01-02,notfuture"`
	Allergies      *string `json:"allergies" binding:"omitempty,max=1000"`
	MedicalHistory *string `json:"medicalHistory" binding:"omitempty,max=5000"`
	ParentEmail    *string `json:"parentEmail" binding:"omitempty,email"`
}

// VisibleTo reports whether a may read the patient: admins always, the
// owning doctor, and the linked parent.
func (p *Patient) VisibleTo(a Actor) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return p.DoctorID == a.UserID
	case RoleParent:
		return p.ParentID != nil && *p.ParentID == a.UserID
	}
	return false
}

// ManageableBy reports whether a may modify or delete the patient.
func (p *Patient) ManageableBy(a Actor) bool {
	return a.Role == RoleAdmin || (a.Role == RoleDoctor && p.DoctorID == a.UserID)
}
