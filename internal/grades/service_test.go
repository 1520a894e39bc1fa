package grades

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campusgrid/campusgrid/internal/authz"
	"github.com/campusgrid/campusgrid/internal/shared"
	"github.com/campusgrid/campusgrid/internal/tenancy"
)

type memoryGradeRepo struct {
	records map[uuid.UUID]GradeRecord
}

func newMemoryGradeRepo() *memoryGradeRepo {
	return &memoryGradeRepo{records: make(map[uuid.UUID]GradeRecord)}
}

func (m *memoryGradeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryGradeTx{repo: m})
}

func (m *memoryGradeRepo) Get(_ context.Context, id uuid.UUID) (GradeRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return GradeRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memoryGradeRepo) GetMany(_ context.Context, ids []uuid.UUID) ([]GradeRecord, error) {
	out := make([]GradeRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryGradeRepo) List(_ context.Context, filter ListFilter, _ *tenancy.Condition) ([]GradeRecord, error) {
	var out []GradeRecord
	for _, rec := range m.records {
		if filter.ClassID != uuid.Nil && rec.ClassID != filter.ClassID {
			continue
		}
		if filter.StudentID != uuid.Nil && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type memoryGradeTx struct {
	repo *memoryGradeRepo
}

func (t *memoryGradeTx) Insert(_ context.Context, rec GradeRecord) error {
	t.repo.records[rec.ID] = rec
	return nil
}

func (t *memoryGradeTx) UpdateContent(_ context.Context, id uuid.UUID, score float64, comment string) error {
	rec, ok := t.repo.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Score = score
	rec.Comment = comment
	t.repo.records[id] = rec
	return nil
}

func (t *memoryGradeTx) UpdateStatus(_ context.Context, id uuid.UUID, status GradeStatus) error {
	rec, ok := t.repo.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	t.repo.records[id] = rec
	return nil
}

type memoryDirectory struct {
	classSchools   map[uuid.UUID]uuid.UUID
	studentSchools map[uuid.UUID]uuid.UUID
	teacherClasses map[uuid.UUID]map[uuid.UUID]bool
	teacherKids    map[uuid.UUID]map[uuid.UUID]bool
	parentKids     map[uuid.UUID]map[uuid.UUID]bool
	parentClasses  map[uuid.UUID]map[uuid.UUID]bool
}

func (d *memoryDirectory) ClassSchool(_ context.Context, classID uuid.UUID) (uuid.UUID, error) {
	return d.classSchools[classID], nil
}

func (d *memoryDirectory) StudentSchool(_ context.Context, studentID uuid.UUID) (uuid.UUID, error) {
	return d.studentSchools[studentID], nil
}

func (d *memoryDirectory) TeacherTeachesClass(_ context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return d.teacherClasses[teacherID][classID], nil
}

func (d *memoryDirectory) TeacherTeachesStudent(_ context.Context, teacherID, studentID uuid.UUID) (bool, error) {
	return d.teacherKids[teacherID][studentID], nil
}

func (d *memoryDirectory) ParentHasChild(_ context.Context, parentID, studentID uuid.UUID) (bool, error) {
	return d.parentKids[parentID][studentID], nil
}

func (d *memoryDirectory) ParentHasChildInClass(_ context.Context, parentID, classID uuid.UUID) (bool, error) {
	return d.parentClasses[parentID][classID], nil
}

type captureAudit struct {
	logs []shared.AuditLog
}

func (c *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	c.logs = append(c.logs, log)
	return nil
}

type captureEnqueuer struct {
	schools []uuid.UUID
	batches [][]uuid.UUID
}

func (c *captureEnqueuer) EnqueueGradeRelease(_ context.Context, schoolID uuid.UUID, ids []uuid.UUID) error {
	c.schools = append(c.schools, schoolID)
	c.batches = append(c.batches, ids)
	return nil
}

type gradeFixture struct {
	repo      *memoryGradeRepo
	svc       *Service
	audit     *captureAudit
	enqueuer  *captureEnqueuer
	school    uuid.UUID
	class     uuid.UUID
	subject   uuid.UUID
	student   uuid.UUID
	teacher   authz.Principal
	principal authz.Principal
	parent    authz.Principal
}

func newGradeFixture(t *testing.T) *gradeFixture {
	t.Helper()
	f := &gradeFixture{
		repo:     newMemoryGradeRepo(),
		audit:    &captureAudit{},
		enqueuer: &captureEnqueuer{},
		school:   uuid.New(),
		class:    uuid.New(),
		subject:  uuid.New(),
		student:  uuid.New(),
	}
	teacherID := uuid.New()
	parentID := uuid.New()
	f.teacher = authz.Principal{UserID: teacherID, Role: authz.RoleTeacher, SchoolID: f.school}
	f.principal = authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: f.school}
	f.parent = authz.Principal{UserID: parentID, Role: authz.RoleParent, SchoolID: f.school}

	dir := &memoryDirectory{
		classSchools:   map[uuid.UUID]uuid.UUID{f.class: f.school},
		studentSchools: map[uuid.UUID]uuid.UUID{f.student: f.school},
		teacherClasses: map[uuid.UUID]map[uuid.UUID]bool{teacherID: {f.class: true}},
		teacherKids:    map[uuid.UUID]map[uuid.UUID]bool{teacherID: {f.student: true}},
		parentKids:     map[uuid.UUID]map[uuid.UUID]bool{parentID: {f.student: true}},
		parentClasses:  map[uuid.UUID]map[uuid.UUID]bool{parentID: {f.class: true}},
	}
	f.svc = NewService(f.repo, dir, nil, f.audit, nil, f.enqueuer, nil)
	return f
}

func (f *gradeFixture) draft(t *testing.T) GradeRecord {
	t.Helper()
	rec, err := f.svc.CreateDraft(context.Background(), f.teacher, CreateGradeInput{
		ClassID:   f.class,
		SubjectID: f.subject,
		StudentID: f.student,
		Term:      "2026-T1",
		Score:     82,
		MaxScore:  100,
		Comment:   "solid work",
	})
	require.NoError(t, err)
	return rec
}

func TestGradeLifecycleFlow(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)
	require.Equal(t, StatusDraft, rec.Status)
	require.Equal(t, f.school, rec.SchoolID)
	require.Equal(t, f.teacher.UserID, rec.TeacherID)

	rec, err := f.svc.Submit(ctx, f.teacher, rec.ID, "term one complete")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, rec.Status)

	rec, err = f.svc.Hold(ctx, f.principal, rec.ID, "spot check")
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, rec.Status)

	rec, err = f.svc.Approve(ctx, f.principal, rec.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, rec.Status)

	rec, err = f.svc.Release(ctx, f.principal, rec.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, rec.Status)

	require.Len(t, f.enqueuer.batches, 1)
	require.Equal(t, []uuid.UUID{rec.ID}, f.enqueuer.batches[0])
	require.Equal(t, f.school, f.enqueuer.schools[0])

	// Parents see the record once it is released.
	got, err := f.svc.Get(ctx, f.parent, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, got.Status)
}

func TestGradeRejectAndReopen(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)
	rec, err := f.svc.Submit(ctx, f.teacher, rec.ID, "")
	require.NoError(t, err)

	rec, err = f.svc.Reject(ctx, f.principal, rec.ID, "score looks off")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rec.Status)

	// The teacher fixes the rejected record and resubmits.
	rec, err = f.svc.UpdateContent(ctx, f.teacher, rec.ID, 78, "rechecked")
	require.NoError(t, err)
	require.Equal(t, float64(78), rec.Score)

	rec, err = f.svc.Reopen(ctx, f.teacher, rec.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, rec.Status)

	rec, err = f.svc.Submit(ctx, f.teacher, rec.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, rec.Status)
}

func TestGradeEditRefusedAfterSubmit(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)
	_, err := f.svc.Submit(ctx, f.teacher, rec.ID, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateContent(ctx, f.teacher, rec.ID, 95, "bump")
	require.ErrorIs(t, err, ErrReadOnly)

	// Refused before any write: the stored record is untouched.
	stored := f.repo.records[rec.ID]
	require.Equal(t, float64(82), stored.Score)
	require.Equal(t, "solid work", stored.Comment)
}

func TestGradeIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)

	// A draft cannot be approved or released.
	_, err := f.svc.Approve(ctx, f.principal, rec.ID, "")
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = f.svc.Release(ctx, f.principal, rec.ID, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	// Teachers cannot approve their own submissions.
	_, err = f.svc.Submit(ctx, f.teacher, rec.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.teacher, rec.ID, "")
	require.ErrorIs(t, err, ErrIllegalTransition)

	require.Equal(t, StatusSubmitted, f.repo.records[rec.ID].Status)
}

func TestGradeOverride(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)
	for _, step := range []func() (GradeRecord, error){
		func() (GradeRecord, error) { return f.svc.Submit(ctx, f.teacher, rec.ID, "") },
		func() (GradeRecord, error) { return f.svc.Approve(ctx, f.principal, rec.ID, "") },
		func() (GradeRecord, error) { return f.svc.Release(ctx, f.principal, rec.ID, "") },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	// Released is terminal for the graph; the override path reopens it.
	_, err := f.svc.Override(ctx, f.teacher, rec.ID, StatusDraft, "")
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	got, err := f.svc.Override(ctx, f.principal, rec.ID, StatusDraft, "clerical error")
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)

	var overrideLog *shared.AuditLog
	for i := range f.audit.logs {
		if f.audit.logs[i].Action == "GRADE_OVERRIDE" {
			overrideLog = &f.audit.logs[i]
		}
	}
	require.NotNil(t, overrideLog)
	require.Equal(t, "RELEASED", overrideLog.Meta["from"])
	require.Equal(t, "DRAFT", overrideLog.Meta["to"])

	_, err = f.svc.Override(ctx, f.principal, rec.ID, "LIMBO", "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestGradeBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	first := f.draft(t)
	second := f.draft(t)
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err := f.svc.Submit(ctx, f.teacher, id, "")
		require.NoError(t, err)
	}
	missing := uuid.New()

	err := f.svc.ApproveBatch(ctx, f.principal, []uuid.UUID{first.ID, second.ID, missing}, "")
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 1)
	require.ErrorIs(t, batchErr.Failures[missing], ErrNotFound)

	// The whole batch aborted: no record changed status.
	require.Equal(t, StatusSubmitted, f.repo.records[first.ID].Status)
	require.Equal(t, StatusSubmitted, f.repo.records[second.ID].Status)

	require.NoError(t, f.svc.ApproveBatch(ctx, f.principal, []uuid.UUID{first.ID, second.ID}, ""))
	require.Equal(t, StatusApproved, f.repo.records[first.ID].Status)
	require.Equal(t, StatusApproved, f.repo.records[second.ID].Status)

	require.NoError(t, f.svc.ReleaseBatch(ctx, f.principal, []uuid.UUID{first.ID, second.ID}, "", ""))
	require.Equal(t, StatusReleased, f.repo.records[first.ID].Status)
	require.Len(t, f.enqueuer.batches, 1)
	require.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, f.enqueuer.batches[0])
}

func TestGradeBatchReleaseMixedStatusAborts(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	first := f.draft(t)
	second := f.draft(t)
	stuck := f.draft(t)
	for _, id := range []uuid.UUID{first.ID, second.ID, stuck.ID} {
		_, err := f.svc.Submit(ctx, f.teacher, id, "")
		require.NoError(t, err)
	}
	// Only the first two make it to approved; the third is still submitted.
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err := f.svc.Approve(ctx, f.principal, id, "")
		require.NoError(t, err)
	}

	err := f.svc.ReleaseBatch(ctx, f.principal, []uuid.UUID{first.ID, second.ID, stuck.ID}, "", "")
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 1)
	require.ErrorIs(t, batchErr.Failures[stuck.ID], ErrIllegalTransition)

	// Nothing moved and nobody was notified.
	require.Equal(t, StatusApproved, f.repo.records[first.ID].Status)
	require.Equal(t, StatusApproved, f.repo.records[second.ID].Status)
	require.Equal(t, StatusSubmitted, f.repo.records[stuck.ID].Status)
	require.Empty(t, f.enqueuer.batches)
}

func TestGradeCrossSchoolDenied(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)

	outsider := authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal, SchoolID: uuid.New()}
	_, err := f.svc.Get(ctx, outsider, rec.ID)
	require.ErrorIs(t, err, tenancy.ErrTenancyViolation)

	_, err = f.svc.Submit(ctx, outsider, rec.ID, "")
	require.ErrorIs(t, err, tenancy.ErrTenancyViolation)

	err = f.svc.ApproveBatch(ctx, outsider, []uuid.UUID{rec.ID}, "")
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.ErrorIs(t, batchErr.Failures[rec.ID], tenancy.ErrTenancyViolation)

	// Creating into a foreign class is refused before insert.
	_, err = f.svc.CreateDraft(ctx, outsider, CreateGradeInput{
		ClassID:   f.class,
		SubjectID: f.subject,
		StudentID: f.student,
		Term:      "2026-T1",
		Score:     50,
		MaxScore:  100,
	})
	require.ErrorIs(t, err, tenancy.ErrTenancyViolation)
}

func TestGradeParentVisibility(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)

	rec := f.draft(t)

	// Unreleased records do not exist as far as parents are concerned.
	_, err := f.svc.Get(ctx, f.parent, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.ListGradebook(ctx, f.parent, ListFilter{StudentID: f.student})
	require.NoError(t, err)
	require.Empty(t, list)

	// A parent not linked to the student is denied outright.
	stranger := authz.Principal{UserID: uuid.New(), Role: authz.RoleParent, SchoolID: f.school}
	_, err = f.svc.ListGradebook(ctx, stranger, ListFilter{StudentID: f.student})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	for _, step := range []func() (GradeRecord, error){
		func() (GradeRecord, error) { return f.svc.Submit(ctx, f.teacher, rec.ID, "") },
		func() (GradeRecord, error) { return f.svc.Approve(ctx, f.principal, rec.ID, "") },
		func() (GradeRecord, error) { return f.svc.Release(ctx, f.principal, rec.ID, "") },
	} {
		_, err := step()
		require.NoError(t, err)
	}

	list, err = f.svc.ListGradebook(ctx, f.parent, ListFilter{StudentID: f.student})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, StatusReleased, list[0].Status)
}

func TestGradeListScopes(t *testing.T) {
	ctx := context.Background()
	f := newGradeFixture(t)
	rec := f.draft(t)

	// Teachers must name a class they teach.
	_, err := f.svc.ListGradebook(ctx, f.teacher, ListFilter{})
	require.ErrorIs(t, err, ErrValidation)

	list, err := f.svc.ListGradebook(ctx, f.teacher, ListFilter{ClassID: f.class})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, rec.ID, list[0].ID)

	_, err = f.svc.ListGradebook(ctx, f.teacher, ListFilter{ClassID: uuid.New()})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	// School scope lists without a class filter.
	list, err = f.svc.ListGradebook(ctx, f.principal, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// A principal without a school assignment gets nothing, not everything.
	list, err = f.svc.ListGradebook(ctx, authz.Principal{UserID: uuid.New(), Role: authz.RolePrincipal}, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}
