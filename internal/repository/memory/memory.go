// Package memory provides in-process repository implementations used by
// service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[uuid.UUID]model.User{}}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
		if user.LicenseNumber != nil && u.LicenseNumber != nil && *u.LicenseNumber == *user.LicenseNumber {
			return repository.ErrDuplicateLicense
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) ExistsByLicense(_ context.Context, license string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.LicenseNumber != nil && *u.LicenseNumber == license {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Name = user.Name
	u.HospitalAffiliation = user.HospitalAffiliation
	u.Specialization = user.Specialization
	u.PhoneNumber = user.PhoneNumber
	u.UpdatedAt = time.Now().UTC()
	user.UpdatedAt = u.UpdatedAt
	r.users[u.ID] = u
	return nil
}

func (r *UserRepository) RecordLoginFailure(_ context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error {
	return r.update(id, func(u *model.User) {
		u.FailedLoginAttempts = attempts
		u.LockedUntil = lockedUntil
	})
}

func (r *UserRepository) RecordLoginSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &at
	})
}

func (r *UserRepository) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *UserRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleDoctor {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r *UserRepository) doctors() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.User
	for _, u := range r.users {
		if u.Role == model.RoleDoctor {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func contains(field *string, term string) bool {
	return field != nil && strings.Contains(strings.ToLower(*field), strings.ToLower(term))
}

func (r *UserRepository) ListDoctors(_ context.Context, filter model.DoctorFilter) ([]*model.User, int, error) {
	var matched []*model.User
	for _, u := range r.doctors() {
		u := u
		if filter.Hospital != "" && !contains(u.HospitalAffiliation, filter.Hospital) {
			continue
		}
		if filter.Specialization != "" && !contains(u.Specialization, filter.Specialization) {
			continue
		}
		if filter.Search != "" && !contains(&u.Name, filter.Search) &&
			!contains(&u.Email, filter.Search) && !contains(u.HospitalAffiliation, filter.Search) {
			continue
		}
		if active := filter.ActiveOnly(); active != nil && u.IsActive != *active {
			continue
		}
		matched = append(matched, &u)
	}

	offset := filter.Normalize(10)
	total := len(matched)
	if offset >= total {
		return []*model.User{}, total, nil
	}
	end := offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *UserRepository) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) (*model.User, error) {
	if _, err := r.GetDoctor(ctx, id); err != nil {
		return nil, err
	}
	if err := r.update(id, func(u *model.User) { u.IsActive = active }); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *UserRepository) TopHospitals(_ context.Context, limit int) ([]model.HospitalCount, error) {
	counts := map[string]int{}
	for _, u := range r.doctors() {
		if u.IsActive && u.HospitalAffiliation != nil {
			counts[*u.HospitalAffiliation]++
		}
	}
	out := make([]model.HospitalCount, 0, len(counts))
	for h, c := range counts {
		out = append(out, model.HospitalCount{Hospital: h, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hospital < out[j].Hospital
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepository) HospitalStats(_ context.Context) ([]model.HospitalStats, error) {
	byHospital := map[string]*model.HospitalStats{}
	specs := map[string]map[string]bool{}
	for _, u := range r.doctors() {
		if u.HospitalAffiliation == nil {
			continue
		}
		h := *u.HospitalAffiliation
		st, ok := byHospital[h]
		if !ok {
			st = &model.HospitalStats{Hospital: h}
			byHospital[h] = st
			specs[h] = map[string]bool{}
		}
		st.TotalDoctors++
		if u.IsActive {
			st.ActiveDoctors++
		}
		if u.Specialization != nil && !specs[h][*u.Specialization] {
			specs[h][*u.Specialization] = true
			st.Specializations = append(st.Specializations, *u.Specialization)
		}
	}
	out := make([]model.HospitalStats, 0, len(byHospital))
	for _, st := range byHospital {
		sort.Strings(st.Specializations)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalDoctors != out[j].TotalDoctors {
			return out[i].TotalDoctors > out[j].TotalDoctors
		}
		return out[i].Hospital < out[j].Hospital
	})
	return out, nil
}

func (r *UserRepository) CountDoctors(_ context.Context) (int, int, error) {
	total, active := 0, 0
	for _, u := range r.doctors() {
		total++
		if u.IsActive {
			active++
		}
	}
	return total, active, nil
}

type PatientRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]model.Patient
}

func NewPatientRepository() *PatientRepository {
	return &PatientRepository{patients: map[uuid.UUID]model.Patient{}}
}

var _ repository.PatientRepository = (*PatientRepository)(nil)

func (r *PatientRepository) Create(_ context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = *p
	return nil
}

func (r *PatientRepository) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PatientRepository) Update(_ context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	r.patients[p.ID] = *p
	return nil
}

func (r *PatientRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.patients, id)
	return nil
}

func (r *PatientRepository) List(_ context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Patient{}
	for _, p := range r.patients {
		p := p
		if filter.DoctorID != nil && p.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.ParentID != nil && (p.ParentID == nil || *p.ParentID != *filter.ParentID) {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type AssessmentRepository struct {
	mu      sync.RWMutex
	records []*model.Assessment
}

func NewAssessmentRepository() *AssessmentRepository {
	return &AssessmentRepository{}
}

var _ repository.AssessmentRepository = (*AssessmentRepository)(nil)

func (r *AssessmentRepository) Create(_ context.Context, a *model.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.records = append(r.records, &cp)
	return nil
}

func (r *AssessmentRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*model.Assessment{}
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].PatientID == patientID {
			cp := *r.records[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AssessmentRepository) DeleteByPatient(_ context.Context, patientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var n int64
	for _, a := range r.records {
		if a.PatientID == patientID {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.records = kept
	return n, nil
}

// OutboxRepository keeps events in insertion order.
type OutboxRepository struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	cp.Status = model.OutboxStatusPending
	r.events = append(r.events, &cp)
	return nil
}

// Events returns a copy of every stored event.
func (r *OutboxRepository) Events() []model.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OutboxEvent, len(r.events))
	for i, e := range r.events {
		out[i] = *e
	}
	return out
}

// Types lists the stored event types in insertion order.
func (r *OutboxRepository) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.EventType)
	}
	return out
}

func (r *OutboxRepository) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*model.OutboxEvent
	for _, e := range r.events {
		if len(out) == limit {
			break
		}
		if e.Status != model.OutboxStatusPending || (e.RetryAt != nil && e.RetryAt.After(now)) {
			continue
		}
		until := now.Add(lease)
		e.RetryAt = &until
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *OutboxRepository) find(id uuid.UUID) (*model.OutboxEvent, error) {
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *OutboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.find(id)
	if err != nil {
		return err
	}
	now := time.Now()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	return nil
}

func (r *OutboxRepository) MarkRetry(_ context.Context, id uuid.UUID, retryCount int, errMsg string, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.find(id)
	if err != nil {
		return err
	}
	e.RetryCount = retryCount
	e.ErrorMessage = &errMsg
	e.RetryAt = &retryAt
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.find(id)
	if err != nil {
		return err
	}
	e.Status = model.OutboxStatusFailed
	e.RetryCount = retryCount
	e.ErrorMessage = &errMsg
	return nil
}

func (r *OutboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

type AuditRepository struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *AuditRepository) Logs() []model.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditLog(nil), r.logs...)
}

func (r *AuditRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.logs[:0]
	var n int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return n, nil
}

type TokenRepository struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{revoked: map[string]time.Time{}}
}

var _ repository.TokenRepository = (*TokenRepository)(nil)

func (r *TokenRepository) Revoke(_ context.Context, tokenID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = until
	return nil
}

func (r *TokenRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.revoked[tokenID]
	return ok && time.Now().Before(until), nil
}
