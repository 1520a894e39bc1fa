package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrValidation indicates invalid user input.
	ErrValidation = errors.New("users: validation failed")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
)

// User represents a provisioned account within a school, or a platform
// administrator when SchoolID is the zero UUID.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         authz.Role
	SchoolID     uuid.UUID
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResourceSchoolID reports the school the user belongs to.
func (u User) ResourceSchoolID() uuid.UUID {
	return u.SchoolID
}
