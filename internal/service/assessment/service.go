// Package assessment scores audio samples for a patient and keeps the
// resulting history.
package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/ml"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
	"github.com/rsyarsya/pneuscope/internal/risk"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/event"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

// DefaultHighRiskThreshold applies when Config leaves the threshold unset.
// Loaded configuration never reaches here with zero: config.Validate
// requires a threshold in (0,1].
const DefaultHighRiskThreshold = 0.7

type Config struct {
	MaxSamples        int
	HighRiskThreshold float64
}

type Service struct {
	patients    repository.PatientRepository
	users       repository.UserRepository
	assessments repository.AssessmentRepository
	predictor   ml.Predictor
	events      event.Emitter
	auditor     audit.Recorder
	metrics     *metrics.Metrics
	cfg         Config
	now         func() time.Time
}

func NewService(
	patients repository.PatientRepository,
	users repository.UserRepository,
	assessments repository.AssessmentRepository,
	predictor ml.Predictor,
	events event.Emitter,
	auditor audit.Recorder,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = DefaultHighRiskThreshold
	}
	return &Service{
		patients:    patients,
		users:       users,
		assessments: assessments,
		predictor:   predictor,
		events:      events,
		auditor:     auditor,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *Service) patient(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Patient, error) {
	p, err := s.patients.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Patient", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !p.VisibleTo(actor) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return p, nil
}

// Predict scores samples for a patient. When the ML service cannot answer
// the rule-based fallback is used instead; the caller never sees the
// difference except through Source.
func (s *Service) Predict(ctx context.Context, actor model.Actor, req model.PredictRequest) (*model.PredictResult, error) {
	if !actor.Is(model.RoleDoctor, model.RoleAdmin) {
		return nil, apperrors.Forbidden("Access denied")
	}
	if err := risk.Validate(req.Audio, s.cfg.MaxSamples); err != nil {
		return nil, apperrors.Validation([]apperrors.FieldError{{Field: "audio", Message: err.Error()}})
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperrors.Validation([]apperrors.FieldError{{Field: "patientId", Message: "patientId must be a valid UUID"}})
	}
	p, err := s.patient(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}

	a := &model.Assessment{
		PatientID: p.ID,
		Samples:   req.Audio,
		Analysis:  risk.Analyze(req.Audio),
		CreatedBy: actor.UserID,
		CreatedAt: s.now().UTC(),
	}

	pred, err := s.predictor.Predict(ctx, req.Audio)
	if err != nil {
		log.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("ML service unavailable, using fallback score")
		a.RiskScore = risk.Fallback(req.Audio)
		a.Source = model.SourceFallback
		s.metrics.FallbackTotal.Inc()
	} else {
		a.RiskScore = risk.Clamp(pred.RiskScore)
		a.Source = model.SourceMLService
		a.Confidence = pred.Confidence
		a.External = pred.Analysis
	}

	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, apperrors.Internal(err)
	}

	highRisk := risk.IsHighRisk(a.RiskScore, s.cfg.HighRiskThreshold)
	s.metrics.RiskScores.Observe(a.RiskScore)
	if highRisk {
		s.metrics.HighRiskTotal.Inc()
	}

	payload := model.AssessmentCreatedPayload{
		AssessmentID: a.ID,
		PatientID:    p.ID,
		PatientName:  p.Name,
		RiskScore:    a.RiskScore,
		Source:       a.Source,
		HighRisk:     highRisk,
		ParentEmail:  s.parentEmail(ctx, p),
		CreatedBy:    actor.UserID,
		CreatedAt:    a.CreatedAt,
	}
	if err := s.events.Emit(ctx, model.EventAssessmentCreated, payload); err != nil {
		log.Error().Err(err).Str("assessment_id", a.ID).Msg("Failed to record assessment event")
	}

	s.auditor.Log(ctx, actor, model.AuditActionPredict, model.AuditEntityAssessment, a.ID, map[string]interface{}{
		"patient_id": p.ID.String(),
		"risk_score": a.RiskScore,
		"source":     a.Source,
	})

	return &model.PredictResult{
		RiskScore:  a.RiskScore,
		Source:     a.Source,
		Confidence: a.Confidence,
		HighRisk:   highRisk,
		Assessment: a,
	}, nil
}

func (s *Service) parentEmail(ctx context.Context, p *model.Patient) string {
	if p.ParentID == nil {
		return ""
	}
	parent, err := s.users.Get(ctx, *p.ParentID)
	if err != nil {
		log.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("Failed to load linked parent")
		return ""
	}
	return parent.Email
}

// History lists a patient's assessments, newest first.
func (s *Service) History(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Assessment, error) {
	if _, err := s.patient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	records, err := s.assessments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return records, nil
}
