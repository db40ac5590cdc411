package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
)

const patientColumns = `
	id, name, date_of_birth, allergies, medical_history, doctor_id, parent_id,
	created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, name, date_of_birth, allergies, medical_history,
			doctor_id, parent_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.DateOfBirth,
		patient.Allergies,
		patient.MedicalHistory,
		patient.DoctorID,
		patient.ParentID,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			name = $1,
			date_of_birth = $2,
			allergies = $3,
			medical_history = $4,
			parent_id = $5,
			updated_at = $6
		WHERE id = $7
	`
	patient.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		patient.Name,
		patient.DateOfBirth,
		patient.Allergies,
		patient.MedicalHistory,
		patient.ParentID,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return checkAffected(res)
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return checkAffected(res)
}

func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.ParentID != nil {
		args = append(args, *filter.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}

	query := `SELECT ` + patientColumns + ` FROM patients`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
