package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/event"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/validator"
)

var errAccessDenied = apperrors.Forbidden("Access denied")

type Service struct {
	repo        repository.PatientRepository
	users       repository.UserRepository
	assessments repository.AssessmentRepository
	events      event.Emitter
	auditor     audit.Recorder
}

func NewService(
	repo repository.PatientRepository,
	users repository.UserRepository,
	assessments repository.AssessmentRepository,
	events event.Emitter,
	auditor audit.Recorder,
) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		assessments: assessments,
		events:      events,
		auditor:     auditor,
	}
}

// List returns the patients visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor model.Actor) ([]*model.Patient, error) {
	var filter model.PatientFilter
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleDoctor:
		filter.DoctorID = &actor.UserID
	case model.RoleParent:
		filter.ParentID = &actor.UserID
	default:
		return nil, errAccessDenied
	}

	patients, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return patients, nil
}

// Children returns the patients linked to a parent account.
func (s *Service) Children(ctx context.Context, actor model.Actor) ([]*model.Patient, error) {
	if actor.Role != model.RoleParent {
		return nil, apperrors.Forbidden("Only parent accounts have linked children")
	}
	patients, err := s.repo.List(ctx, model.PatientFilter{ParentID: &actor.UserID})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return patients, nil
}

// Get loads a patient the actor is allowed to see.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Patient, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.VisibleTo(actor) {
		return nil, errAccessDenied
	}
	return p, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Patient", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return p, nil
}

func parseDOB(value string) (time.Time, error) {
	dob, err := time.Parse(validator.DateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.Validation([]apperrors.FieldError{{
			Field:   "dateOfBirth",
			Message: "Please provide a valid date of birth",
		}})
	}
	return dob, nil
}

// resolveParent maps a parent email onto a parent account id. An empty
// email unlinks.
func (s *Service) resolveParent(ctx context.Context, email string) (*uuid.UUID, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	parent, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && parent.Role != model.RoleParent) {
		return nil, apperrors.Validation([]apperrors.FieldError{{
			Field:   "parentEmail",
			Message: "parentEmail does not belong to a registered parent",
		}})
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &parent.ID, nil
}

// resolveDoctor picks the owning doctor of a new patient. Without an id
// the creator owns it. Admins may name any active doctor; doctors may only
// name themselves.
func (s *Service) resolveDoctor(ctx context.Context, actor model.Actor, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return actor.UserID, nil
	}
	invalid := apperrors.Validation([]apperrors.FieldError{{
		Field:   "doctorId",
		Message: "doctorId does not belong to an active doctor",
	}})
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid
	}
	if actor.Role != model.RoleAdmin {
		if id != actor.UserID {
			return uuid.Nil, apperrors.Forbidden("Only admins can assign patients to another doctor")
		}
		return id, nil
	}

	doctor, err := s.users.GetDoctor(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !doctor.IsActive) {
		return uuid.Nil, invalid
	}
	if err != nil {
		return uuid.Nil, apperrors.Internal(err)
	}
	return doctor.ID, nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req model.CreatePatientRequest) (*model.Patient, error) {
	if !actor.Is(model.RoleDoctor, model.RoleAdmin) {
		return nil, errAccessDenied
	}

	dob, err := parseDOB(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	parentID, err := s.resolveParent(ctx, req.ParentEmail)
	if err != nil {
		return nil, err
	}
	doctorID, err := s.resolveDoctor(ctx, actor, req.DoctorID)
	if err != nil {
		return nil, err
	}

	p := &model.Patient{
		Name:           strings.TrimSpace(req.Name),
		DateOfBirth:    dob,
		Allergies:      strings.TrimSpace(req.Allergies),
		MedicalHistory: strings.TrimSpace(req.MedicalHistory),
		DoctorID:       doctorID,
		ParentID:       parentID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.emit(ctx, model.EventPatientCreated, p, actor)
	s.auditor.Log(ctx, actor, model.AuditActionCreate, model.AuditEntityPatient, p.ID.String(), nil)
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req model.UpdatePatientRequest) (*model.Patient, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.ManageableBy(actor) {
		return nil, errAccessDenied
	}

	changed := []string{}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
		changed = append(changed, "name")
	}
	if req.DateOfBirth != nil {
		dob, err := parseDOB(*req.DateOfBirth)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = dob
		changed = append(changed, "dateOfBirth")
	}
	if req.Allergies != nil {
		p.Allergies = strings.TrimSpace(*req.Allergies)
		changed = append(changed, "allergies")
	}
	if req.MedicalHistory != nil {
		p.MedicalHistory = strings.TrimSpace(*req.MedicalHistory)
		changed = append(changed, "medicalHistory")
	}
	if req.ParentEmail != nil {
		parentID, err := s.resolveParent(ctx, *req.ParentEmail)
		if err != nil {
			return nil, err
		}
		p.ParentID = parentID
		changed = append(changed, "parentEmail")
	}

	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Patient", err)
		}
		return nil, apperrors.Internal(err)
	}

	s.emit(ctx, model.EventPatientUpdated, p, actor)
	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityPatient, p.ID.String(), map[string]interface{}{
		"fields": changed,
	})
	return p, nil
}

// Delete removes the patient and every assessment recorded for it.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !p.ManageableBy(actor) {
		return errAccessDenied
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("Patient", err)
		}
		return apperrors.Internal(err)
	}

	removed, err := s.assessments.DeleteByPatient(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("patient_id", id.String()).Msg("Failed to delete patient assessments")
	}

	s.emit(ctx, model.EventPatientDeleted, p, actor)
	s.auditor.Log(ctx, actor, model.AuditActionDelete, model.AuditEntityPatient, id.String(), map[string]interface{}{
		"assessments_removed": removed,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, p *model.Patient, actor model.Actor) {
	err := s.events.Emit(ctx, eventType, model.PatientEventPayload{
		PatientID: p.ID,
		Name:      p.Name,
		DoctorID:  p.DoctorID,
		ParentID:  p.ParentID,
		ActorID:   actor.UserID,
	})
	if err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("patient_id", p.ID.String()).
			Msg("Failed to record patient event")
	}
}
