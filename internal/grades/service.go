package grades

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

// approvalModule tags grade entries in the shared approvals table.
const approvalModule = "GRADES"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (GradeRecord, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]GradeRecord, error)
	List(ctx context.Context, filter ListFilter, cond *tenancy.Condition) ([]GradeRecord, error)
}

// TxRepository exposes transactional mutations.
type TxRepository interface {
	Insert(ctx context.Context, rec GradeRecord) error
	UpdateContent(ctx context.Context, id uuid.UUID, score float64, comment string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status GradeStatus) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReleaseEnqueuer schedules parent notifications after a release commits.
type ReleaseEnqueuer interface {
	EnqueueGradeRelease(ctx context.Context, schoolID uuid.UUID, recordIDs []uuid.UUID) error
}

// Service orchestrates the grade approval workflow. Every mutation validates
// permission, tenancy and lifecycle before any persistence call.
type Service struct {
	repo        RepositoryPort
	directory   authz.MembershipDirectory
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	enqueuer    ReleaseEnqueuer
	logger      *slog.Logger
}

// NewService constructs the grades service.
func NewService(repo RepositoryPort, directory authz.MembershipDirectory, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore, enqueuer ReleaseEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, approvals: approvals, audit: audit, idempotency: idem, enqueuer: enqueuer, logger: logger}
}

// CreateGradeInput describes a new draft entry.
type CreateGradeInput struct {
	ClassID   uuid.UUID
	SubjectID uuid.UUID
	StudentID uuid.UUID
	Term      string
	Score     float64
	MaxScore  float64
	Comment   string
}

// ListFilter narrows gradebook listings.
type ListFilter struct {
	ClassID   uuid.UUID
	StudentID uuid.UUID
	Status    GradeStatus
	Limit     int
	Offset    int
}

// BatchError aggregates per-record failures from an all-or-nothing batch
// action. The whole batch is aborted when it is returned.
type BatchError struct {
	Failures map[uuid.UUID]error
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for id, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	return "grades: batch aborted: " + strings.Join(parts, "; ")
}

// HTTPStatus maps the batch rejection to 409 for the httpx responder.
func (e *BatchError) HTTPStatus() int { return http.StatusConflict }

// CreateDraft inserts a new draft grade for a class the actor may write to.
// The record's school is derived from the class, never taken from the caller.
func (s *Service) CreateDraft(ctx context.Context, actor authz.Principal, input CreateGradeInput) (GradeRecord, error) {
	if input.ClassID == uuid.Nil || input.SubjectID == uuid.Nil || input.StudentID == uuid.Nil {
		return GradeRecord{}, fmt.Errorf("%w: class, subject and student required", ErrValidation)
	}
	if strings.TrimSpace(input.Term) == "" {
		return GradeRecord{}, fmt.Errorf("%w: term required", ErrValidation)
	}
	if input.MaxScore <= 0 || input.Score < 0 || input.Score > input.MaxScore {
		return GradeRecord{}, fmt.Errorf("%w: score out of range", ErrValidation)
	}

	d := authz.Resolve(actor.Role, authz.PermGradesEdit)
	if !d.Allowed {
		return GradeRecord{}, &authz.DeniedError{Reason: d.Reason}
	}

	classSchool, err := s.directory.ClassSchool(ctx, input.ClassID)
	if err != nil {
		return GradeRecord{}, err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if !guard.ValidateSchoolAccess(classSchool) {
		return GradeRecord{}, &tenancy.ViolationError{Detail: "class outside principal tenancy"}
	}
	if actor.Role == authz.RoleTeacher {
		teaches, err := s.directory.TeacherTeachesClass(ctx, actor.UserID, input.ClassID)
		if err != nil {
			return GradeRecord{}, err
		}
		if !teaches {
			return GradeRecord{}, &authz.DeniedError{Reason: "teacher not assigned to class"}
		}
	}

	rec := GradeRecord{
		ID:        uuid.New(),
		SchoolID:  classSchool,
		ClassID:   input.ClassID,
		SubjectID: input.SubjectID,
		StudentID: input.StudentID,
		TeacherID: actor.UserID,
		Term:      strings.TrimSpace(input.Term),
		Score:     input.Score,
		MaxScore:  input.MaxScore,
		Status:    StatusDraft,
		Comment:   input.Comment,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, rec)
	})
	if err != nil {
		return GradeRecord{}, err
	}
	s.recordAudit(ctx, actor, "GRADE_CREATE", rec, map[string]any{"term": rec.Term})
	return rec, nil
}

// UpdateContent changes score and comment of an editable record. Refused
// before any write once the status forbids edits for the actor.
func (s *Service) UpdateContent(ctx context.Context, actor authz.Principal, id uuid.UUID, score float64, comment string) (GradeRecord, error) {
	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return GradeRecord{}, err
	}
	if score < 0 || score > rec.MaxScore {
		return GradeRecord{}, fmt.Errorf("%w: score out of range", ErrValidation)
	}
	if !CanEdit(rec, actor) {
		return GradeRecord{}, fmt.Errorf("%w: status %s", ErrReadOnly, rec.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateContent(ctx, id, score, comment)
	})
	if err != nil {
		return GradeRecord{}, err
	}
	rec.Score = score
	rec.Comment = comment
	s.recordAudit(ctx, actor, "GRADE_UPDATE", rec, map[string]any{"score": score})
	return rec, nil
}

// Submit moves a draft into the approval queue.
func (s *Service) Submit(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	return s.transition(ctx, actor, id, StatusSubmitted, shared.ApprovalSubmit, note)
}

// Approve accepts a submitted or held record.
func (s *Service) Approve(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	return s.transition(ctx, actor, id, StatusApproved, shared.ApprovalApprove, note)
}

// Reject returns a submitted or held record to the teacher for correction.
func (s *Service) Reject(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	return s.transition(ctx, actor, id, StatusRejected, shared.ApprovalReject, note)
}

// Hold parks a submitted record for closer review.
func (s *Service) Hold(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	return s.transition(ctx, actor, id, StatusUnderReview, shared.ApprovalHold, note)
}

// Reopen returns a rejected record to draft for editing.
func (s *Service) Reopen(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	return s.transition(ctx, actor, id, StatusDraft, shared.ApprovalSubmit, note)
}

// Release makes an approved record visible to the student and parents, and
// schedules the notification task.
func (s *Service) Release(ctx context.Context, actor authz.Principal, id uuid.UUID, note string) (GradeRecord, error) {
	rec, err := s.transition(ctx, actor, id, StatusReleased, shared.ApprovalRelease, note)
	if err != nil {
		return GradeRecord{}, err
	}
	s.enqueueRelease(ctx, rec.SchoolID, []uuid.UUID{rec.ID})
	return rec, nil
}

// Override sets any status directly, bypassing the lifecycle graph. Reserved
// for corrections after release; every use is recorded in the approval trail
// and the audit log.
func (s *Service) Override(ctx context.Context, actor authz.Principal, id uuid.UUID, target GradeStatus, note string) (GradeRecord, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return GradeRecord{}, err
	}
	if !CanOverride(actor) {
		return GradeRecord{}, &authz.DeniedError{Reason: "override permission required"}
	}
	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return GradeRecord{}, err
	}
	from := rec.Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, target)
	})
	if err != nil {
		return GradeRecord{}, err
	}
	rec.Status = target
	s.recordApproval(ctx, actor, rec.ID, shared.ApprovalOverride, note)
	s.recordAudit(ctx, actor, "GRADE_OVERRIDE", rec, map[string]any{"from": string(from), "to": string(target)})
	return rec, nil
}

// ApproveBatch accepts a set of records all-or-nothing: any record failing
// validation aborts the whole batch before a single write.
func (s *Service) ApproveBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note string) error {
	return s.transitionBatch(ctx, actor, ids, StatusApproved, shared.ApprovalApprove, note, "")
}

// RejectBatch returns a set of records to their teachers all-or-nothing.
func (s *Service) RejectBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note string) error {
	return s.transitionBatch(ctx, actor, ids, StatusRejected, shared.ApprovalReject, note, "")
}

// ReleaseBatch releases a set of approved records all-or-nothing. idemKey,
// when non-empty, deduplicates retried release requests.
func (s *Service) ReleaseBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, note, idemKey string) error {
	return s.transitionBatch(ctx, actor, ids, StatusReleased, shared.ApprovalRelease, note, idemKey)
}

// Get returns one record after permission and tenancy checks.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id uuid.UUID) (GradeRecord, error) {
	d := authz.Resolve(actor.Role, authz.PermGradebookView)
	if !d.Allowed {
		return GradeRecord{}, &authz.DeniedError{Reason: d.Reason}
	}
	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return GradeRecord{}, err
	}
	resolver := authz.NewResolver(actor, s.directory)
	switch d.Scope {
	case authz.ScopeAll, authz.ScopeSchool:
		// tenancy already validated in load
	case authz.ScopeClass:
		ok, err := resolver.CanAccessClass(ctx, authz.PermGradebookView, rec.ClassID)
		if err != nil {
			return GradeRecord{}, err
		}
		if !ok {
			return GradeRecord{}, &authz.DeniedError{Reason: "class outside granted scope"}
		}
	case authz.ScopeOwn:
		ok, err := resolver.CanAccessStudent(ctx, authz.PermGradebookView, rec.StudentID, rec.SchoolID)
		if err != nil {
			return GradeRecord{}, err
		}
		if !ok {
			return GradeRecord{}, &authz.DeniedError{Reason: "student outside granted scope"}
		}
		// Parents only ever see released grades.
		if actor.Role == authz.RoleParent && rec.Status != StatusReleased {
			return GradeRecord{}, ErrNotFound
		}
	}
	return rec, nil
}

// ListGradebook lists records within the actor's granted scope. School-scoped
// actors get a tenant-filtered listing; class-scoped actors must name a class
// they teach; own-scoped actors must name a linked student.
func (s *Service) ListGradebook(ctx context.Context, actor authz.Principal, filter ListFilter) ([]GradeRecord, error) {
	d := authz.Resolve(actor.Role, authz.PermGradebookView)
	if !d.Allowed {
		return nil, &authz.DeniedError{Reason: d.Reason}
	}
	resolver := authz.NewResolver(actor, s.directory)
	switch d.Scope {
	case authz.ScopeAll, authz.ScopeSchool:
		// fall through to the tenant filter below
	case authz.ScopeClass:
		if filter.ClassID == uuid.Nil {
			return nil, fmt.Errorf("%w: class filter required", ErrValidation)
		}
		ok, err := resolver.CanAccessClass(ctx, authz.PermGradebookView, filter.ClassID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &authz.DeniedError{Reason: "class outside granted scope"}
		}
	case authz.ScopeOwn:
		if filter.StudentID == uuid.Nil {
			return nil, fmt.Errorf("%w: student filter required", ErrValidation)
		}
		ok, err := resolver.CanAccessStudent(ctx, authz.PermGradebookView, filter.StudentID, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &authz.DeniedError{Reason: "student outside granted scope"}
		}
		if actor.Role == authz.RoleParent {
			filter.Status = StatusReleased
		}
	}

	guard := tenancy.NewGuard(actor, s.logger)
	cond := guard.ApplySchoolFilter(tenancy.NewCondition(), "grade_records").(*tenancy.Condition)
	if cond.Impossible() {
		return nil, nil
	}
	return s.repo.List(ctx, filter, cond)
}

// History returns the approval trail for a record the actor may see.
func (s *Service) History(ctx context.Context, actor authz.Principal, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, approvalModule, id)
}

func (s *Service) transition(ctx context.Context, actor authz.Principal, id uuid.UUID, target GradeStatus, action shared.ApprovalAction, note string) (GradeRecord, error) {
	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return GradeRecord{}, err
	}
	next, err := AttemptTransition(rec, target, actor)
	if err != nil {
		return GradeRecord{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, next)
	})
	if err != nil {
		return GradeRecord{}, err
	}
	from := rec.Status
	rec.Status = next
	s.recordApproval(ctx, actor, rec.ID, action, note)
	s.recordAudit(ctx, actor, "GRADE_"+string(action), rec, map[string]any{"from": string(from), "to": string(next)})
	return rec, nil
}

// transitionBatch applies one lifecycle edge to every record or to none.
// Validation runs over the full set before the transaction starts.
func (s *Service) transitionBatch(ctx context.Context, actor authz.Principal, ids []uuid.UUID, target GradeStatus, action shared.ApprovalAction, note, idemKey string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty batch", ErrValidation)
	}
	if idemKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, approvalModule); err != nil {
			return err
		}
	}
	records, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]GradeRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	guard := tenancy.NewGuard(actor, s.logger)
	failures := make(map[uuid.UUID]error)
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			failures[id] = ErrNotFound
			continue
		}
		if err := guard.ValidateResourceAccess(rec, nil); err != nil {
			failures[id] = err
			continue
		}
		if _, err := AttemptTransition(rec, target, actor); err != nil {
			failures[id] = err
		}
	}
	if len(failures) > 0 {
		if idemKey != "" {
			// Roll the key back so a corrected batch can retry.
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return &BatchError{Failures: failures}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			if err := tx.UpdateStatus(ctx, id, target); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	var schoolID uuid.UUID
	for _, id := range ids {
		rec := byID[id]
		schoolID = rec.SchoolID
		s.recordApproval(ctx, actor, id, action, note)
	}
	s.recordAudit(ctx, actor, "GRADE_BATCH_"+string(action), GradeRecord{ID: ids[0], SchoolID: schoolID}, map[string]any{"count": len(ids)})
	if target == StatusReleased {
		s.enqueueRelease(ctx, schoolID, ids)
	}
	return nil
}

// load fetches a record and validates tenancy against the actor.
func (s *Service) load(ctx context.Context, actor authz.Principal, id uuid.UUID) (GradeRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return GradeRecord{}, err
	}
	guard := tenancy.NewGuard(actor, s.logger)
	if err := guard.ValidateResourceAccess(rec, nil); err != nil {
		return GradeRecord{}, err
	}
	return rec, nil
}

func (s *Service) recordApproval(ctx context.Context, actor authz.Principal, ref uuid.UUID, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   ref,
		ActorID: actor.UserID,
		Action:  action,
		Note:    note,
	}); err != nil {
		s.logger.Error("record grade approval", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor authz.Principal, action string, rec GradeRecord, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		SchoolID: rec.SchoolID,
		Action:   action,
		Entity:   "grade_record",
		EntityID: rec.ID.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("record grade audit", slog.Any("error", err))
	}
}

func (s *Service) enqueueRelease(ctx context.Context, schoolID uuid.UUID, ids []uuid.UUID) {
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.EnqueueGradeRelease(ctx, schoolID, ids); err != nil {
		s.logger.Error("enqueue grade release", slog.Any("error", err))
	}
}
