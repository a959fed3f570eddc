package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery", hash)

	require.NoError(t, CheckPassword(hash, "correct horse battery"))
	require.ErrorIs(t, CheckPassword(hash, "wrong horse"), ErrInvalidCredentials)
}

func TestHashPasswordRejectsWeak(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least")
}

func TestHashPasswordRejectsOverlong(t *testing.T) {
	// bcrypt silently ignores beyond 72 bytes, so the limit is enforced.
	_, err := HashPassword(strings.Repeat("a", 73))
	require.Error(t, err)
	require.Contains(t, err.Error(), "at most")
}

func TestCheckPasswordGarbageHash(t *testing.T) {
	require.ErrorIs(t, CheckPassword("not a bcrypt hash", "whatever password"), ErrInvalidCredentials)
}
