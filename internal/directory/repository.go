// Package directory answers membership questions: which school a class or
// student belongs to, which classes a teacher covers, which children a parent
// is linked to. The authorization layer consumes it through the
// authz.MembershipDirectory interface.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the looked-up entity does not exist.
var ErrNotFound = errors.New("directory: not found")

// Repository provides PostgreSQL backed membership lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClassSchool returns the school a class belongs to.
func (r *Repository) ClassSchool(ctx context.Context, classID uuid.UUID) (uuid.UUID, error) {
	var schoolID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT school_id FROM classes WHERE id=$1`, classID).Scan(&schoolID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return schoolID, nil
}

// StudentSchool returns the school a student is enrolled in.
func (r *Repository) StudentSchool(ctx context.Context, studentID uuid.UUID) (uuid.UUID, error) {
	var schoolID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT school_id FROM students WHERE id=$1`, studentID).Scan(&schoolID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return schoolID, nil
}

// TeacherTeachesClass reports whether the teacher is assigned to the class.
func (r *Repository) TeacherTeachesClass(ctx context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT true FROM class_teachers WHERE teacher_id=$1 AND class_id=$2 LIMIT 1`, teacherID, classID)
}

// TeacherTeachesStudent reports whether the student sits in one of the
// teacher's classes.
func (r *Repository) TeacherTeachesStudent(ctx context.Context, teacherID, studentID uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT true FROM class_teachers ct
JOIN class_students cs ON cs.class_id = ct.class_id
WHERE ct.teacher_id=$1 AND cs.student_id=$2 LIMIT 1`, teacherID, studentID)
}

// ParentHasChild reports whether the student is linked to the parent.
func (r *Repository) ParentHasChild(ctx context.Context, parentID, studentID uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT true FROM parent_students WHERE parent_id=$1 AND student_id=$2 LIMIT 1`, parentID, studentID)
}

// ParentHasChildInClass reports whether any of the parent's children sit in
// the class.
func (r *Repository) ParentHasChildInClass(ctx context.Context, parentID, classID uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT true FROM parent_students ps
JOIN class_students cs ON cs.student_id = ps.student_id
WHERE ps.parent_id=$1 AND cs.class_id=$2 LIMIT 1`, parentID, classID)
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, query, args...).Scan(&ok)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
