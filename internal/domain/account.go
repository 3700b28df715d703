package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleInspector = "inspector"
)

// Account is the credential-bearing identity. Second-factor secrets and
// password hashes never leave the application layer.
type Account struct {
	AccountID        uuid.UUID
	Username         string
	Email            *string
	FullName         string
	PasswordHash     string
	Roles            []string
	TwoFactorEnabled bool
	TwoFactorSecret  *string
	IsActive         bool
	// System marks accounts provisioned by the service itself. Registration
	// can never set it, and system accounts never pass password login.
	System           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasTwoFactorSecret reports whether setup has stored a shared secret.
func (a Account) HasTwoFactorSecret() bool {
	return a.TwoFactorSecret != nil && *a.TwoFactorSecret != ""
}

// BackupCode is one single-use recovery code, held only as a hash.
type BackupCode struct {
	CodeID    uuid.UUID
	AccountID uuid.UUID
	CodeHash  string
	CreatedAt time.Time
}

// LoginAttempt records authentication outcomes for audit.
type LoginAttempt struct {
	ID            int64
	AccountID     *uuid.UUID
	Username      string
	AttemptAt     time.Time
	IPAddress     string
	UserAgent     string
	Status        string
	FailureReason string
}

const (
	LoginStatusSuccess = "success"
	LoginStatusFailure = "failure"
)
