package domain

import (
	"fmt"
	"strings"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 6
	// bcrypt ignores anything past 72 bytes.
	maxPasswordLength = 72
)

// NormalizeUsername folds a handle to its canonical, case-insensitive form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail returns nil for blank input.
func NormalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}

// ValidateUsername enforces handle length and charset.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be between %d and %d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return fmt.Errorf("%w: username must not contain whitespace", ErrInvalidInput)
	}
	return nil
}

// ValidatePassword enforces the password length policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be <= %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	return nil
}

// ValidateEmail performs a shallow shape check; nil is allowed.
func ValidateEmail(email *string) error {
	if email == nil {
		return nil
	}
	at := strings.Index(*email, "@")
	if at <= 0 || at == len(*email)-1 {
		return fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return nil
}
