package schools

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

type memorySchoolRepo struct {
	schools map[uuid.UUID]School
}

func newMemorySchoolRepo() *memorySchoolRepo {
	return &memorySchoolRepo{schools: make(map[uuid.UUID]School)}
}

func (m *memorySchoolRepo) Create(_ context.Context, s School) error {
	m.schools[s.ID] = s
	return nil
}

func (m *memorySchoolRepo) Get(_ context.Context, id uuid.UUID) (School, error) {
	s, ok := m.schools[id]
	if !ok {
		return School{}, ErrNotFound
	}
	return s, nil
}

func (m *memorySchoolRepo) List(_ context.Context) ([]School, error) {
	out := make([]School, 0, len(m.schools))
	for _, s := range m.schools {
		out = append(out, s)
	}
	return out, nil
}

func (m *memorySchoolRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s, ok := m.schools[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = active
	m.schools[id] = s
	return nil
}

func TestSchoolManagement(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySchoolRepo()
	svc := NewService(repo, nil, nil)

	admin := authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}

	created, err := svc.Create(ctx, admin, CreateInput{Name: "  Northgate Academy ", Address: "1 North Rd"})
	require.NoError(t, err)
	require.Equal(t, "Northgate Academy", created.Name)
	require.True(t, created.IsActive)

	_, err = svc.Create(ctx, admin, CreateInput{Name: "   "})
	require.ErrorIs(t, err, ErrValidation)

	// Tenant registration is a platform operation.
	principal := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: created.ID}
	_, err = svc.Create(ctx, principal, CreateInput{Name: "Rogue School"})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	require.ErrorIs(t, svc.SetActive(ctx, principal, created.ID, false), authz.ErrAccessDenied)
	require.NoError(t, svc.SetActive(ctx, admin, created.ID, false))
	require.False(t, repo.schools[created.ID].IsActive)
}

func TestSchoolVisibility(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySchoolRepo()
	svc := NewService(repo, nil, nil)

	admin := authz.Principal{UserID: uuid.New(), Role: authz.RoleSystemAdmin}
	first, err := svc.Create(ctx, admin, CreateInput{Name: "First"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, admin, CreateInput{Name: "Second"})
	require.NoError(t, err)

	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// School staff see only their own tenant.
	principal := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: first.ID}
	own, err := svc.List(ctx, principal)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, first.ID, own[0].ID)

	_, err = svc.Get(ctx, principal, second.ID)
	require.ErrorIs(t, err, tenancy.ErrTenancyViolation)

	got, err := svc.Get(ctx, principal, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	// Unassigned accounts see nothing.
	unassigned := authz.Principal{UserID: uuid.New(), Role: authz.RoleTeacher}
	none, err := svc.List(ctx, unassigned)
	require.NoError(t, err)
	require.Empty(t, none)
}
