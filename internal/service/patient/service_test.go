package patient

import (
	"context"
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

type fixture struct {
	svc         *Service
	users       *memory.UserRepository
	assessments *memory.AssessmentRepository
	outbox      *memory.OutboxRepository
	doctor      model.Actor
	parent      model.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := memory.NewUserRepository()
	assessments := memory.NewAssessmentRepository()
	outbox := memory.NewOutboxRepository()

	doctor := &model.User{Name: "Doc", Email: "doc@example.com", Role: model.RoleDoctor, IsActive: true}
	parent := &model.User{Name: "Mum", Email: "mum@example.com", Role: model.RoleParent, IsActive: true}
	require.NoError(t, users.Create(context.Background(), doctor))
	require.NoError(t, users.Create(context.Background(), parent))

	svc := NewService(memory.NewPatientRepository(), users, assessments,
		event.NewService(outbox), audit.NewService(memory.NewAuditRepository()))

	return fixture{
		svc:         svc,
		users:       users,
		assessments: assessments,
		outbox:      outbox,
		doctor:      model.Actor{UserID: doctor.ID, Role: model.RoleDoctor},
		parent:      model.Actor{UserID: parent.ID, Role: model.RoleParent},
	}
}

func statusOf(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode()
	}
	return 0
}

func TestPatientRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.doctor, model.CreatePatientRequest{
		Name:        "  Budi  ",
		DateOfBirth: "2022-03-04",
		Allergies:   "peanuts ",
		ParentEmail: "MUM@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Budi", created.Name)
	assert.Equal(t, "peanuts", created.Allergies)
	assert.Equal(t, f.doctor.UserID, created.DoctorID)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, f.parent.UserID, *created.ParentID)

	got, err := f.svc.Get(ctx, f.doctor, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2022-03-04", got.DateOfBirth.Format("2006-01-02"))

	name := "Budi Santoso"
	updated, err := f.svc.Update(ctx, f.doctor, created.ID, model.UpdatePatientRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "peanuts", updated.Allergies)

	require.NoError(t, f.svc.Delete(ctx, f.doctor, created.ID))
	_, err = f.svc.Get(ctx, f.doctor, created.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	assert.Equal(t, []string{
		model.EventPatientCreated,
		model.EventPatientUpdated,
		model.EventPatientDeleted,
	}, f.outbox.Types())
}

func TestDeleteRemovesAssessments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.doctor, model.CreatePatientRequest{Name: "Ani", DateOfBirth: "2023-01-01"})
	require.NoError(t, err)
	require.NoError(t, f.assessments.Create(ctx, &model.Assessment{PatientID: p.ID, RiskScore: 0.2}))

	require.NoError(t, f.svc.Delete(ctx, f.doctor, p.ID))

	left, err := f.assessments.ListByPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestVisibilityByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	linked, err := f.svc.Create(ctx, f.doctor, model.CreatePatientRequest{
		Name: "Linked", DateOfBirth: "2022-01-01", ParentEmail: "mum@example.com",
	})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.doctor, model.CreatePatientRequest{Name: "Other", DateOfBirth: "2022-01-01"})
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, f.doctor)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	children, err := f.svc.Children(ctx, f.parent)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, linked.ID, children[0].ID)

	stranger := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	_, err = f.svc.Get(ctx, stranger, linked.ID)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	theirs, err := f.svc.List(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	all, err := f.svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, http.StatusForbidden, statusOf(f.svc.Delete(ctx, stranger, linked.ID)))
}

func TestCreateRejectsUnknownParent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.doctor, model.CreatePatientRequest{
		Name: "Ani", DateOfBirth: "2023-01-01", ParentEmail: "doc@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = f.svc.Create(context.Background(), f.doctor, model.CreatePatientRequest{
		Name: "Ani", DateOfBirth: "2023-01-01", ParentEmail: "ghost@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestParentsCannotCreatePatients(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.parent, model.CreatePatientRequest{Name: "Ani", DateOfBirth: "2023-01-01"})
	assert.Equal(t, http.StatusForbidden, statusOf(err))
}

func TestMissingPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.svc.Get(ctx, f.doctor, id)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
	_, err = f.svc.Update(ctx, f.doctor, id, model.UpdatePatientRequest{})
	assert.Equal(t, http.StatusNotFound, statusOf(err))
	assert.Equal(t, http.StatusNotFound, statusOf(f.svc.Delete(ctx, f.doctor, id)))
}

func TestAdminAssignsPatientToDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}

	created, err := f.svc.Create(ctx, admin, model.CreatePatientRequest{
		Name:        "Sari",
		DateOfBirth: "2021-06-01",
		DoctorID:    f.doctor.UserID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, f.doctor.UserID, created.DoctorID)

	mine, err := f.svc.List(ctx, f.doctor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	// without doctorId the admin keeps ownership
	own, err := f.svc.Create(ctx, admin, model.CreatePatientRequest{Name: "Rina", DateOfBirth: "2021-06-01"})
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, own.DoctorID)
}

func TestAssignedDoctorMustBeActiveDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}

	retired := &model.User{Name: "Old", Email: "old@example.com", Role: model.RoleDoctor, IsActive: false}
	require.NoError(t, f.users.Create(ctx, retired))

	for name, id := range map[string]string{
		"unknown":  uuid.NewString(),
		"parent":   f.parent.UserID.String(),
		"inactive": retired.ID.String(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, admin, model.CreatePatientRequest{Name: "Sari", DateOfBirth: "2021-06-01", DoctorID: id})
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, statusOf(err))
		})
	}

	other := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	_, err := f.svc.Create(ctx, other, model.CreatePatientRequest{
		Name: "Sari", DateOfBirth: "2021-06-01", DoctorID: f.doctor.UserID.String(),
	})
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	mine, err := f.svc.List(ctx, f.doctor)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
