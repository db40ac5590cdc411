package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository/memory"
	"github.com/rsyarsya/pneuscope/pkg/security"
)

func TestSeedIsIdempotent(t *testing.T) {
	users := memory.NewUserRepository()
	patientRepo := memory.NewPatientRepository()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	s := NewSeeder(users, patientRepo, hasher, zap.NewNop())
	ctx := context.Background()

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: len(accounts), Patients: len(patients)}, first)

	second, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	admin, err := users.GetByEmail(ctx, "admin@pneuscope.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.NoError(t, hasher.Compare(admin.PasswordHash, "admin123"))

	parent, err := users.GetByEmail(ctx, "parent@pneuscope.com")
	require.NoError(t, err)
	children, err := patientRepo.List(ctx, model.PatientFilter{ParentID: &parent.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Emma Thompson", children[0].Name)
}
