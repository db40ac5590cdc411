package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Domain event types written to the outbox. The event type doubles as the
// broker channel name.
const (
	EventUserRegistered    = "USER_REGISTERED"
	EventPatientCreated    = "PATIENT_CREATED"
	EventPatientUpdated    = "PATIENT_UPDATED"
	EventPatientDeleted    = "PATIENT_DELETED"
	EventAssessmentCreated = "ASSESSMENT_CREATED"
	EventDoctorStatus      = "DOCTOR_STATUS_CHANGED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// UserRegisteredPayload accompanies EventUserRegistered.
type UserRegisteredPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

// PatientEventPayload accompanies the patient lifecycle events.
type PatientEventPayload struct {
	PatientID uuid.UUID  `json:"patient_id"`
	Name      string     `json:"name"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	ActorID   uuid.UUID  `json:"actor_id"`
}

// AssessmentCreatedPayload accompanies EventAssessmentCreated.
type AssessmentCreatedPayload struct {
	AssessmentID string      `json:"assessment_id"`
	PatientID    uuid.UUID   `json:"patient_id"`
	PatientName  string      `json:"patient_name"`
	RiskScore    float64     `json:"risk_score"`
	Source       ScoreSource `json:"source"`
	HighRisk     bool        `json:"high_risk"`
	ParentEmail  string      `json:"parent_email,omitempty"`
	CreatedBy    uuid.UUID   `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

// DoctorStatusPayload accompanies EventDoctorStatus.
type DoctorStatusPayload struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	IsActive bool      `json:"is_active"`
	ActorID  uuid.UUID `json:"actor_id"`
}
