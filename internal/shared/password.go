package shared

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to all provisioned accounts.
const MinPasswordLength = 8

// ErrWeakPassword indicates the password does not meet the minimum strength.
var ErrWeakPassword = errors.New("password too weak")

// HashPassword produces a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a bcrypt hash against a candidate password.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordStrength scores a password 0..4 based on length and character
// variety. Scores below 2 are rejected by ValidatePassword.
func PasswordStrength(password string) int {
	if len(password) < MinPasswordLength {
		return 0
	}
	score := 1
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	variety := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			variety++
		}
	}
	if variety >= 2 {
		score++
	}
	if variety >= 3 && len(password) >= 10 {
		score++
	}
	if variety == 4 && len(password) >= 12 {
		score++
	}
	return score
}

// ValidatePassword rejects passwords scoring below the acceptance threshold.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrWeakPassword
	}
	if PasswordStrength(password) < 2 {
		return ErrWeakPassword
	}
	return nil
}
