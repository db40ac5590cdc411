package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateLicense = errors.New("license number already registered")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		ExistsByLicense(ctx context.Context, license string) (bool, error)
		UpdateProfile(ctx context.Context, user *model.User) error
		RecordLoginFailure(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error
		RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error

		GetDoctor(ctx context.Context, id uuid.UUID) (*model.User, error)
		ListDoctors(ctx context.Context, filter model.DoctorFilter) ([]*model.User, int, error)
		SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*model.User, error)
		TopHospitals(ctx context.Context, limit int) ([]model.HospitalCount, error)
		HospitalStats(ctx context.Context) ([]model.HospitalStats, error)
		CountDoctors(ctx context.Context) (total int, active int, err error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error)
	}

	// AssessmentRepository stores scored audio records.
	AssessmentRepository interface {
		Create(ctx context.Context, assessment *model.Assessment) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Assessment, error)
		DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// TokenRepository tracks revoked access tokens by jti.
	TokenRepository interface {
		Revoke(ctx context.Context, tokenID string, until time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}
)
