package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context, cond *tenancy.Condition, limit, offset int) ([]User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string, schoolID uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// AuditPort records provisioning actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles account provisioning and management.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput describes a new account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     string
	SchoolID uuid.UUID
}

// Create provisions a new account. Administrators may provision for any
// school; principals only within their own.
func (s *Service) Create(ctx context.Context, actor authz.Principal, input CreateInput) (User, error) {
	d := authz.Resolve(actor.Role, authz.PermUsersManage)
	if !d.Allowed {
		return User{}, &authz.DeniedError{Reason: d.Reason}
	}
	role := authz.ParseRole(input.Role)
	if role == authz.RoleUnknown {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, input.Role)
	}
	if role == authz.RoleSystemAdmin && !actor.IsAdmin() {
		return User{}, &authz.DeniedError{Reason: "only administrators may provision administrators"}
	}
	schoolID := input.SchoolID
	if !actor.IsAdmin() {
		// School staff provision into their own tenant only.
		schoolID = actor.SchoolID
	}
	if role != authz.RoleSystemAdmin && schoolID == uuid.Nil {
		return User{}, fmt.Errorf("%w: school required for role %s", ErrValidation, role)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" {
		return User{}, fmt.Errorf("%w: email and name required", ErrValidation)
	}
	if err := shared.ValidatePassword(input.Password); err != nil {
		return User{}, err
	}
	hash, err := shared.HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		SchoolID:     schoolID,
		IsActive:     true,
	}
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "USER_CREATE", created)
	return created, nil
}

// Get returns one account visible to the actor.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (User, error) {
	d := authz.Resolve(actor.Role, authz.PermUsersView)
	if !d.Allowed && actor.UserID != id {
		return User{}, &authz.DeniedError{Reason: d.Reason}
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if actor.UserID == id {
		return user, nil
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(user, nil); err != nil {
		return User{}, err
	}
	return user, nil
}

// List returns accounts within the actor's tenant. Administrators see all
// schools; everyone else is narrowed to their own tenant.
func (s *Service) List(ctx context.Context, actor authz.Principal, limit, offset int) ([]User, error) {
	d := authz.Resolve(actor.Role, authz.PermUsersView)
	if !d.Allowed {
		return nil, &authz.DeniedError{Reason: d.Reason}
	}
	guard := tenancy.NewGuard(actor, s.logger)
	cond := tenancy.NewCondition()
	guard.ApplySchoolFilter(cond, "users")
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, cond, limit, offset)
}

// ChangeRole reassigns an account's role and school. Administrators only may
// move an account across schools; principals manage roles within their own.
func (s *Service) ChangeRole(ctx context.Context, actor authz.Principal, id uuid.UUID, newRole string, schoolID uuid.UUID) error {
	d := authz.Resolve(actor.Role, authz.PermUsersManage)
	if !d.Allowed {
		return &authz.DeniedError{Reason: d.Reason}
	}
	role := authz.ParseRole(newRole)
	if role == authz.RoleUnknown {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, newRole)
	}
	if role == authz.RoleSystemAdmin && !actor.IsAdmin() {
		return &authz.DeniedError{Reason: "only administrators may grant administrator role"}
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(target, nil); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		schoolID = target.SchoolID
	}
	if role != authz.RoleSystemAdmin && schoolID == uuid.Nil {
		return fmt.Errorf("%w: school required for role %s", ErrValidation, role)
	}
	if err := s.repo.UpdateRole(ctx, id, string(role), schoolID); err != nil {
		return err
	}
	target.Role = role
	target.SchoolID = schoolID
	s.recordAudit(ctx, actor, "USER_CHANGE_ROLE", target)
	return nil
}

// SetActive toggles account activation within the actor's tenant.
func (s *Service) SetActive(ctx context.Context, actor authz.Principal, id uuid.UUID, active bool) error {
	d := authz.Resolve(actor.Role, authz.PermUsersManage)
	if !d.Allowed {
		return &authz.DeniedError{Reason: d.Reason}
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(target, nil); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	target.IsActive = active
	action := "USER_DEACTIVATE"
	if active {
		action = "USER_ACTIVATE"
	}
	s.recordAudit(ctx, actor, action, target)
	return nil
}

// ChangePassword lets a user rotate their own password, or a manager reset
// one within their tenant.
func (s *Service) ChangePassword(ctx context.Context, actor authz.Principal, id uuid.UUID, newPassword string) error {
	if actor.UserID != id {
		d := authz.Resolve(actor.Role, authz.PermUsersManage)
		if !d.Allowed {
			return &authz.DeniedError{Reason: d.Reason}
		}
		target, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		guard := tenancy.NewGuard(actor, s.logger)
		if err := guard.ValidateResourceAccess(target, nil); err != nil {
			return err
		}
	}
	if err := shared.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := shared.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "USER_PASSWORD_CHANGE", User{ID: id, SchoolID: actor.SchoolID})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, target User) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		SchoolID: target.SchoolID,
		Action:   action,
		Entity:   "users",
		EntityID: target.ID.String(),
		Meta:     map[string]any{"role": string(target.Role), "active": target.IsActive},
	})
	if err != nil {
		s.logger.Warn("users: audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}
