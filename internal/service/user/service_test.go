package user

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository/memory"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/event"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
)

func str(s string) *string { return &s }

func seedDoctors(t *testing.T, repo *memory.UserRepository) []*model.User {
	t.Helper()
	rows := []struct {
		hospital  string
		specialty string
		active    bool
	}{
		{"RS Harapan", "Pediatrics", true},
		{"RS Harapan", "Pulmonology", true},
		{"RS Harapan", "Pediatrics", false},
		{"RS Sehat", "Pediatrics", true},
	}
	var out []*model.User
	for i, s := range rows {
		u := &model.User{
			Name:                fmt.Sprintf("Doctor %d", i),
			Email:               fmt.Sprintf("doctor%d@example.com", i),
			Role:                model.RoleDoctor,
			HospitalAffiliation: str(s.hospital),
			Specialization:      str(s.specialty),
			IsActive:            s.active,
		}
		require.NoError(t, repo.Create(context.Background(), u))
		out = append(out, u)
	}
	parent := &model.User{Name: "Parent", Email: "parent@example.com", Role: model.RoleParent, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), parent))
	return out
}

func newService(repo *memory.UserRepository) (*Service, *memory.OutboxRepository) {
	outbox := memory.NewOutboxRepository()
	return NewService(repo, event.NewService(outbox), audit.NewService(memory.NewAuditRepository())), outbox
}

func TestListDoctorsPaginatesAndFilters(t *testing.T) {
	repo := memory.NewUserRepository()
	seedDoctors(t, repo)
	svc, _ := newService(repo)
	ctx := context.Background()

	page, err := svc.ListDoctors(ctx, model.DoctorFilter{PageQuery: model.PageQuery{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Doctors, 2)
	assert.Equal(t, 4, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)
	require.NotEmpty(t, page.HospitalStats)
	assert.Equal(t, "RS Harapan", page.HospitalStats[0].Hospital)
	assert.Equal(t, 2, page.HospitalStats[0].Count)

	inactive, err := svc.ListDoctors(ctx, model.DoctorFilter{Status: "inactive"})
	require.NoError(t, err)
	assert.Len(t, inactive.Doctors, 1)
	assert.Equal(t, 10, inactive.Pagination.Limit)

	search, err := svc.ListDoctors(ctx, model.DoctorFilter{Search: "sehat"})
	require.NoError(t, err)
	assert.Len(t, search.Doctors, 1)
}

func TestGetDoctorRequiresDoctorRole(t *testing.T) {
	repo := memory.NewUserRepository()
	doctors := seedDoctors(t, repo)
	svc, _ := newService(repo)

	got, err := svc.GetDoctor(context.Background(), doctors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, doctors[0].Email, got.Email)

	parent, err := repo.GetByEmail(context.Background(), "parent@example.com")
	require.NoError(t, err)
	_, err = svc.GetDoctor(context.Background(), parent.ID)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode())
}

func TestSetDoctorStatusInvalidatesReport(t *testing.T) {
	repo := memory.NewUserRepository()
	doctors := seedDoctors(t, repo)
	svc, outbox := newService(repo)
	ctx := context.Background()
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}

	report, err := svc.HospitalReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatsSummary{TotalHospitals: 2, TotalDoctors: 4, ActiveDoctors: 3, InactiveDoctors: 1}, report.Summary)
	assert.Equal(t, []string{"Pediatrics", "Pulmonology"}, []string(report.Hospitals[0].Specializations))

	updated, err := svc.SetDoctorStatus(ctx, admin, doctors[2].ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, []string{model.EventDoctorStatus}, outbox.Types())

	report, err = svc.HospitalReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Summary.ActiveDoctors)

	_, err = svc.SetDoctorStatus(ctx, admin, uuid.New(), false)
	assert.Error(t, err)
}

func TestHospitalReportIsCached(t *testing.T) {
	repo := memory.NewUserRepository()
	seedDoctors(t, repo)
	svc, _ := newService(repo)
	ctx := context.Background()

	first, err := svc.HospitalReport(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, &model.User{
		Name: "Late", Email: "late@example.com", Role: model.RoleDoctor,
		HospitalAffiliation: str("RS Baru"), IsActive: true,
	}))

	second, err := svc.HospitalReport(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 4, second.Summary.TotalDoctors)
}
