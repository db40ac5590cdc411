package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/event"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

const (
	statsCacheKey     = "hospital-stats"
	statsCacheTTL     = time.Minute
	topHospitalsLimit = 10
)

// DoctorPage is one page of the admin doctor listing.
type DoctorPage struct {
	Doctors       []*model.User         `json:"doctors"`
	Pagination    httputil.Pagination   `json:"pagination"`
	HospitalStats []model.HospitalCount `json:"hospitalStats"`
}

// Service manages doctor accounts on behalf of administrators.
type Service struct {
	repo    repository.UserRepository
	events  event.Emitter
	auditor audit.Recorder
	cache   *gocache.Cache
}

func NewService(repo repository.UserRepository, events event.Emitter, auditor audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		events:  events,
		auditor: auditor,
		cache:   gocache.New(statsCacheTTL, 2*statsCacheTTL),
	}
}

func (s *Service) ListDoctors(ctx context.Context, filter model.DoctorFilter) (*DoctorPage, error) {
	filter.Normalize(10)

	doctors, total, err := s.repo.ListDoctors(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	top, err := s.repo.TopHospitals(ctx, topHospitalsLimit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &DoctorPage{
		Doctors:       doctors,
		Pagination:    httputil.NewPagination(filter.Page, filter.Limit, total),
		HospitalStats: top,
	}, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	doctor, err := s.repo.GetDoctor(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Doctor", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return doctor, nil
}

func (s *Service) SetDoctorStatus(ctx context.Context, actor model.Actor, id uuid.UUID, active bool) (*model.User, error) {
	doctor, err := s.repo.SetDoctorActive(ctx, id, active)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Doctor", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.cache.Delete(statsCacheKey)

	if err := s.events.Emit(ctx, model.EventDoctorStatus, model.DoctorStatusPayload{
		DoctorID: doctor.ID,
		IsActive: active,
		ActorID:  actor.UserID,
	}); err != nil {
		log.Error().Err(err).Str("doctor_id", id.String()).Msg("Failed to record doctor status event")
	}
	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityUser, id.String(), map[string]interface{}{
		"is_active": active,
	})
	return doctor, nil
}

// HospitalReport aggregates doctors per hospital. Results are cached for a
// minute.
func (s *Service) HospitalReport(ctx context.Context) (*model.HospitalReport, error) {
	if v, ok := s.cache.Get(statsCacheKey); ok {
		return v.(*model.HospitalReport), nil
	}

	hospitals, err := s.repo.HospitalStats(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	total, active, err := s.repo.CountDoctors(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	report := &model.HospitalReport{
		Summary: model.StatsSummary{
			TotalHospitals:  len(hospitals),
			TotalDoctors:    total,
			ActiveDoctors:   active,
			InactiveDoctors: total - active,
		},
		Hospitals: hospitals,
	}
	s.cache.SetDefault(statsCacheKey, report)
	return report, nil
}
