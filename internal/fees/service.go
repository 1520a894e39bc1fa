package fees

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

// RepositoryPort defines data access methods for fee balances.
type RepositoryPort interface {
	Create(ctx context.Context, f FeeBalance) error
	Get(ctx context.Context, id uuid.UUID) (FeeBalance, error)
	List(ctx context.Context, cond *tenancy.Condition, studentID uuid.UUID, term string) ([]FeeBalance, error)
	AddPayment(ctx context.Context, id uuid.UUID, amount int64) (FeeBalance, error)
}

// AuditPort records fee mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages fee charges and payments.
type Service struct {
	repo      RepositoryPort
	directory authz.MembershipDirectory
	audit     AuditPort
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, dir authz.MembershipDirectory, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: dir, audit: audit, logger: logger}
}

// ChargeInput describes a new fee charge.
type ChargeInput struct {
	StudentID uuid.UUID
	Term      string
	Title     string
	AmountDue int64
}

// CreateCharge posts a new charge against a student in the actor's school.
func (s *Service) CreateCharge(ctx context.Context, actor authz.Principal, input ChargeInput) (FeeBalance, error) {
	d := authz.Resolve(actor.Role, authz.PermFeesManage)
	if !d.Allowed {
		return FeeBalance{}, &authz.DeniedError{Reason: d.Reason}
	}
	if input.AmountDue <= 0 {
		return FeeBalance{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	term := strings.TrimSpace(input.Term)
	title := strings.TrimSpace(input.Title)
	if term == "" || title == "" {
		return FeeBalance{}, fmt.Errorf("%w: term and title required", ErrValidation)
	}
	schoolID, err := s.directory.StudentSchool(ctx, input.StudentID)
	if err != nil {
		return FeeBalance{}, err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if !guard.ValidateSchoolAccess(schoolID) {
		return FeeBalance{}, &tenancy.ViolationError{Detail: "student belongs to another school"}
	}
	fee := FeeBalance{
		ID:        uuid.New(),
		SchoolID:  schoolID,
		StudentID: input.StudentID,
		Term:      term,
		Title:     title,
		AmountDue: input.AmountDue,
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return FeeBalance{}, err
	}
	s.recordAudit(ctx, actor, "FEE_CHARGE", fee)
	return fee, nil
}

// RecordPayment applies a payment to a balance within the actor's school.
func (s *Service) RecordPayment(ctx context.Context, actor authz.Principal, id uuid.UUID, amount int64) (FeeBalance, error) {
	d := authz.Resolve(actor.Role, authz.PermFeesManage)
	if !d.Allowed {
		return FeeBalance{}, &authz.DeniedError{Reason: d.Reason}
	}
	if amount <= 0 {
		return FeeBalance{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	fee, err := s.repo.Get(ctx, id)
	if err != nil {
		return FeeBalance{}, err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(fee, nil); err != nil {
		return FeeBalance{}, err
	}
	updated, err := s.repo.AddPayment(ctx, id, amount)
	if err != nil {
		return FeeBalance{}, err
	}
	s.recordAudit(ctx, actor, "FEE_PAYMENT", updated)
	return updated, nil
}

// Get returns one balance the actor may see. Parents reach only their own
// children's balances.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (FeeBalance, error) {
	fee, err := s.repo.Get(ctx, id)
	if err != nil {
		return FeeBalance{}, err
	}
	resolver := authz.NewResolver(actor, s.directory)
	ok, err := resolver.CanAccessStudent(ctx, authz.PermFeesView, fee.StudentID, fee.SchoolID)
	if err != nil {
		return FeeBalance{}, err
	}
	if !ok {
		return FeeBalance{}, &authz.DeniedError{Reason: "fee balance outside your scope"}
	}
	return fee, nil
}

// ListFilter narrows fee listings.
type ListFilter struct {
	StudentID uuid.UUID
	Term      string
}

// List returns balances within the actor's scope. School staff see their
// tenant; parents must name one of their children.
func (s *Service) List(ctx context.Context, actor authz.Principal, filter ListFilter) ([]FeeBalance, error) {
	d := authz.Resolve(actor.Role, authz.PermFeesView)
	if !d.Allowed {
		return nil, &authz.DeniedError{Reason: d.Reason}
	}
	if d.Scope == authz.ScopeOwn {
		if filter.StudentID == uuid.Nil {
			return nil, fmt.Errorf("%w: student_id required", ErrValidation)
		}
		resolver := authz.NewResolver(actor, s.directory)
		ok, err := resolver.CanAccessStudent(ctx, authz.PermFeesView, filter.StudentID, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &authz.DeniedError{Reason: "student outside your scope"}
		}
		return s.repo.List(ctx, tenancy.NewCondition(), filter.StudentID, filter.Term)
	}
	guard := tenancy.NewGuard(actor, s.logger)
	cond := tenancy.NewCondition()
	guard.ApplySchoolFilter(cond, "fee_balances")
	return s.repo.List(ctx, cond, filter.StudentID, filter.Term)
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, fee FeeBalance) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		SchoolID: fee.SchoolID,
		Action:   action,
		Entity:   "fee_balances",
		EntityID: fee.ID.String(),
		Meta:     map[string]any{"student_id": fee.StudentID.String(), "term": fee.Term, "due": fee.AmountDue, "paid": fee.AmountPaid},
	})
	if err != nil {
		s.logger.Warn("fees: audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}
