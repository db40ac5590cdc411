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

const userColumns = `
	id, name, email, password_hash, role, hospital_affiliation, license_number,
	specialization, phone_number, is_active, failed_login_attempts, locked_until,
	last_login_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, hospital_affiliation,
			license_number, specialization, phone_number, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.HospitalAffiliation,
		user.LicenseNumber,
		user.Specialization,
		user.PhoneNumber,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if constraint, ok := uniqueConstraint(err); ok {
		if strings.Contains(constraint, "license") {
			return repository.ErrDuplicateLicense
		}
		return repository.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) ExistsByLicense(ctx context.Context, license string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE license_number = $1)`, license)
	if err != nil {
		return false, fmt.Errorf("failed to check license number: %w", err)
	}
	return exists, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			name = $1,
			hospital_affiliation = $2,
			specialization = $3,
			phone_number = $4,
			updated_at = $5
		WHERE id = $6
	`
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		user.Name,
		user.HospitalAffiliation,
		user.Specialization,
		user.PhoneNumber,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffected(res)
}

func (r *userRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = NOW() WHERE id = $3`,
		attempts, lockedUntil, id)
	return err
}

func (r *userRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id)
	return err
}

func (r *userRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 AND role = 'doctor'`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) ListDoctors(ctx context.Context, filter model.DoctorFilter) ([]*model.User, int, error) {
	where := []string{"role = 'doctor'"}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Hospital != "" {
		where = append(where, "hospital_affiliation ILIKE "+arg(like(filter.Hospital)))
	}
	if filter.Specialization != "" {
		where = append(where, "specialization ILIKE "+arg(like(filter.Specialization)))
	}
	if filter.Search != "" {
		p := arg(like(filter.Search))
		where = append(where, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s OR hospital_affiliation ILIKE %s)", p, p, p))
	}
	if active := filter.ActiveOnly(); active != nil {
		where = append(where, "is_active = "+arg(*active))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count doctors: %w", err)
	}

	offset := filter.Normalize(10)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		userColumns, cond, arg(filter.Limit), arg(offset))

	doctors := []*model.User{}
	if err := r.db.SelectContext(ctx, &doctors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, total, nil
}

func (r *userRepository) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND role = 'doctor'
		RETURNING `+userColumns, active, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) TopHospitals(ctx context.Context, limit int) ([]model.HospitalCount, error) {
	rows := []model.HospitalCount{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT COALESCE(hospital_affiliation, '') AS hospital, COUNT(*) AS count
		FROM users
		WHERE role = 'doctor' AND is_active
		GROUP BY hospital_affiliation
		ORDER BY count DESC, hospital
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hospitals: %w", err)
	}
	return rows, nil
}

func (r *userRepository) HospitalStats(ctx context.Context) ([]model.HospitalStats, error) {
	rows := []model.HospitalStats{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT
			COALESCE(hospital_affiliation, '') AS hospital,
			COUNT(*) AS total_doctors,
			COUNT(*) FILTER (WHERE is_active) AS active_doctors,
			COALESCE(ARRAY_AGG(DISTINCT specialization) FILTER (WHERE specialization IS NOT NULL), '{}') AS specializations
		FROM users
		WHERE role = 'doctor'
		GROUP BY hospital_affiliation
		ORDER BY total_doctors DESC, hospital`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hospital stats: %w", err)
	}
	return rows, nil
}

func (r *userRepository) CountDoctors(ctx context.Context) (int, int, error) {
	var counts struct {
		Total  int `db:"total"`
		Active int `db:"active"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_active) AS active
		FROM users WHERE role = 'doctor'`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count doctors: %w", err)
	}
	return counts.Total, counts.Active, nil
}

// like escapes LIKE metacharacters and wraps s for a substring match.
func like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
