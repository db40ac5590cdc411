// Package seed loads the demo accounts and patients used in local
// development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
	"github.com/rsyarsya/pneuscope/pkg/security"
)

type account struct {
	name, email, password string
	role                  model.Role
	hospital, specialty   string
	license, phone        string
}

var accounts = []account{
	{name: "Admin User", email: "admin@pneuscope.com", password: "admin123", role: model.RoleAdmin},
	{
		name: "Dr. Sarah Johnson", email: "doctor@pneuscope.com", password: "doctor123", role: model.RoleDoctor,
		hospital: "Children's Hospital of Philadelphia", specialty: "Pediatric Pulmonology",
		license: "MD123456", phone: "+1234567890",
	},
	{
		name: "Dr. Michael Chen", email: "mchen@bostonchildrens.org", password: "doctor123", role: model.RoleDoctor,
		hospital: "Boston Children's Hospital", specialty: "Pediatric Emergency Medicine",
		license: "MD789012", phone: "+1987654321",
	},
	{
		name: "Dr. Emily Rodriguez", email: "erodriguez@texaschildrens.org", password: "doctor123", role: model.RoleDoctor,
		hospital: "Texas Children's Hospital", specialty: "Neonatology",
		license: "MD345678", phone: "+1555123456",
	},
	{
		name: "Dr. James Wilson", email: "jwilson@seattlechildrens.org", password: "doctor123", role: model.RoleDoctor,
		hospital: "Seattle Children's Hospital", specialty: "Pediatric Critical Care",
		license: "MD901234", phone: "+1444987654",
	},
	{name: "Anna Thompson", email: "parent@pneuscope.com", password: "parent123", role: model.RoleParent},
}

type patient struct {
	name, dob, allergies, history string
	withParent                    bool
}

var patients = []patient{
	{"Emma Thompson", "2022-03-15", "Penicillin", "Previous respiratory infection at 8 months", true},
	{"Liam Rodriguez", "2021-11-22", "", "Premature birth, monitored for respiratory issues", false},
	{"Sophia Chen", "2022-07-08", "Dairy, Eggs", "Family history of asthma", false},
}

// Result counts what a run created.
type Result struct {
	Users    int
	Patients int
}

type Seeder struct {
	users    repository.UserRepository
	patients repository.PatientRepository
	hasher   security.PasswordHasher
	logger   *zap.Logger
}

func NewSeeder(users repository.UserRepository, patients repository.PatientRepository, hasher security.PasswordHasher, logger *zap.Logger) *Seeder {
	return &Seeder{users: users, patients: patients, hasher: hasher, logger: logger}
}

// Run is idempotent: existing accounts are left alone and sample patients
// are only added when the primary doctor has none.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	byEmail := make(map[string]*model.User, len(accounts))

	for _, a := range accounts {
		u, created, err := s.ensureUser(ctx, a)
		if err != nil {
			return res, err
		}
		if created {
			res.Users++
			s.logger.Info("Created user", zap.String("email", a.email), zap.String("role", string(a.role)))
		}
		byEmail[a.email] = u
	}

	doctor := byEmail["doctor@pneuscope.com"]
	parent := byEmail["parent@pneuscope.com"]
	existing, err := s.patients.List(ctx, model.PatientFilter{DoctorID: &doctor.ID})
	if err != nil {
		return res, fmt.Errorf("failed to list patients: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("Sample patients already present", zap.Int("count", len(existing)))
		return res, nil
	}

	for _, p := range patients {
		dob, err := time.Parse("2006-01-02", p.dob)
		if err != nil {
			return res, fmt.Errorf("invalid seed date %q: %w", p.dob, err)
		}
		row := &model.Patient{
			Name:           p.name,
			DateOfBirth:    dob,
			Allergies:      p.allergies,
			MedicalHistory: p.history,
			DoctorID:       doctor.ID,
		}
		if p.withParent {
			row.ParentID = &parent.ID
		}
		if err := s.patients.Create(ctx, row); err != nil {
			return res, fmt.Errorf("failed to create patient %s: %w", p.name, err)
		}
		res.Patients++
		s.logger.Info("Created patient", zap.String("name", p.name))
	}
	return res, nil
}

func (s *Seeder) ensureUser(ctx context.Context, a account) (*model.User, bool, error) {
	u, err := s.users.GetByEmail(ctx, a.email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up %s: %w", a.email, err)
	}

	hash, err := s.hasher.Hash(a.password)
	if err != nil {
		return nil, false, err
	}
	u = &model.User{
		Name:                a.name,
		Email:               a.email,
		PasswordHash:        hash,
		Role:                a.role,
		HospitalAffiliation: optional(a.hospital),
		Specialization:      optional(a.specialty),
		LicenseNumber:       optional(a.license),
		PhoneNumber:         optional(a.phone),
		IsActive:            true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("failed to create %s: %w", a.email, err)
	}
	return u, true, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
