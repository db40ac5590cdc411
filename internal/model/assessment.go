package model

import (
	"time"

	"github.com/google/uuid"
)

type ScoreSource string

const (
	SourceMLService ScoreSource = "ml-service"
	SourceFallback  ScoreSource = "fallback"
)

// Assessment is one scored batch of audio samples for a patient.
type Assessment struct {
	ID         string                 `json:"id"`
	PatientID  uuid.UUID              `json:"patientId"`
	Samples    []float64              `json:"audioData"`
	RiskScore  float64                `json:"riskScore"`
	Source     ScoreSource            `json:"source"`
	Confidence *float64               `json:"confidence,omitempty"`
	Analysis   AudioAnalysis          `json:"analysis"`
	External   map[string]interface{} `json:"mlAnalysis,omitempty"`
	CreatedBy  uuid.UUID              `json:"createdBy"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// AudioAnalysis summarises a sample array.
type AudioAnalysis struct {
	Count           int     `json:"count" bson:"count"`
	Mean            float64 `json:"mean" bson:"mean"`
	Max             float64 `json:"max" bson:"max"`
	Min             float64 `json:"min" bson:"min"`
	StdDev          float64 `json:"std" bson:"std"`
	DurationSeconds float64 `json:"durationSeconds" bson:"duration_seconds"`
}

type PredictRequest struct {
	PatientID string    `json:"patientId" binding:"required,uuid"`
	Audio     []float64 `json:"audio" binding:"required"`
}

// PredictResult is the response body of a prediction.
type PredictResult struct {
	RiskScore  float64     `json:"risk_score"`
	Source     ScoreSource `json:"source"`
	Confidence *float64    `json:"confidence,omitempty"`
	HighRisk   bool        `json:"high_risk"`
	Assessment *Assessment `json:"assessment"`
}
