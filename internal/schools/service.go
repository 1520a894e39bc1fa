package schools

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, s School) error
	Get(ctx context.Context, id uuid.UUID) (School, error)
	List(ctx context.Context) ([]School, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages tenant master data.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the schools service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput describes a new school.
type CreateInput struct {
	Name    string
	Address string
	OwnerID uuid.UUID
}

// Create registers a new school. Platform administrators only.
func (s *Service) Create(ctx context.Context, actor authz.Principal, input CreateInput) (School, error) {
	d := authz.Resolve(actor.Role, authz.PermSchoolsManage)
	if !d.Allowed {
		return School{}, &authz.DeniedError{Reason: d.Reason}
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return School{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	school := School{
		ID:       uuid.New(),
		Name:     name,
		Address:  strings.TrimSpace(input.Address),
		OwnerID:  input.OwnerID,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return School{}, err
	}
	s.recordAudit(ctx, actor, "SCHOOL_CREATE", school)
	return school, nil
}

// Get returns one school the actor may see.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (School, error) {
	school, err := s.repo.Get(ctx, id)
	if err != nil {
		return School{}, err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(school, nil); err != nil {
		return School{}, err
	}
	return school, nil
}

// List returns every school for administrators, or only the actor's own
// school otherwise.
func (s *Service) List(ctx context.Context, actor authz.Principal) ([]School, error) {
	if authz.Resolve(actor.Role, authz.PermSchoolsViewAll).Allowed {
		return s.repo.List(ctx)
	}
	if !actor.HasSchool() {
		return nil, nil
	}
	school, err := s.repo.Get(ctx, actor.SchoolID)
	if err != nil {
		return nil, err
	}
	return []School{school}, nil
}

// SetActive toggles tenant availability. Platform administrators only.
func (s *Service) SetActive(ctx context.Context, actor authz.Principal, id uuid.UUID, active bool) error {
	d := authz.Resolve(actor.Role, authz.PermSchoolsManage)
	if !d.Allowed {
		return &authz.DeniedError{Reason: d.Reason}
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "SCHOOL_SET_ACTIVE", School{ID: id, IsActive: active})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, school School) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		SchoolID: school.ID,
		Action:   action,
		Entity:   "school",
		EntityID: school.ID.String(),
		Meta:     map[string]any{"name": school.Name},
	}); err != nil {
		s.logger.Error("record school audit", slog.Any("error", err))
	}
}
