// Package auth implements account credentials, server-side sessions, API
// tokens, and the request authentication middleware. Browsers authenticate
// with a session cookie; programmatic clients use a bearer JWT. Both paths
// resolve to the same Identity.
package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password. The
	// two cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes, so longer passwords are rejected
	// rather than silently truncated.
	maxPasswordBytes = 72
)

// HashPassword validates password strength and returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a candidate password against a stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
