package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/campusgrid/campusgrid/internal/authz"
)

// Account represents credentials loaded for a login attempt.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         authz.Role
	SchoolID     uuid.UUID
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
