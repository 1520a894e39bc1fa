package fees

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the fee balance does not exist.
	ErrNotFound = errors.New("fees: not found")
	// ErrValidation indicates invalid fee input.
	ErrValidation = errors.New("fees: validation failed")
	// ErrOverpayment indicates a payment exceeding the outstanding amount.
	ErrOverpayment = errors.New("fees: payment exceeds outstanding balance")
)

// FeeBalance tracks what a student owes for a term within one school.
type FeeBalance struct {
	ID         uuid.UUID
	SchoolID   uuid.UUID
	StudentID  uuid.UUID
	Term       string
	Title      string
	AmountDue  int64
	AmountPaid int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding reports the unpaid remainder in minor units.
func (f FeeBalance) Outstanding() int64 {
	return f.AmountDue - f.AmountPaid
}

// ResourceSchoolID reports the owning tenant.
func (f FeeBalance) ResourceSchoolID() uuid.UUID {
	return f.SchoolID
}
