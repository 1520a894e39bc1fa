package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campusgrid/campusgrid/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	limiter *shared.RateLimiter
}

// NewService constructs a new Service. limiter may be nil to disable login
// throttling.
func NewService(repo Repository, limiter *shared.RateLimiter) *Service {
	return &Service{repo: repo, limiter: limiter}
}

// Authenticate validates email/password credentials. Failed attempts count
// against a per-email rate limit; the limit resets on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.limiter.Check(ctx, email); err != nil {
		return nil, err
	}
	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !acc.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.limiter.Reset(ctx, email); err != nil {
		return acc, nil
	}
	return acc, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, acc *Account, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, acc.ID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes session rows past their expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, time.Now())
}
