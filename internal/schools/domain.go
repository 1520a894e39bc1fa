package schools

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// School is the unit of data isolation; every tenant-scoped record belongs to
// exactly one school.
type School struct {
	ID        uuid.UUID
	Name      string
	Address   string
	OwnerID   uuid.UUID
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResourceSchoolID implements tenancy.Resource; a school is its own tenant.
func (s School) ResourceSchoolID() uuid.UUID {
	return s.ID
}

var (
	// ErrNotFound indicates school missing.
	ErrNotFound = errors.New("schools: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("schools: invalid input")
)
