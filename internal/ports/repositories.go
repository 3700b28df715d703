package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

// CreateAccountParams captures the inputs for inserting a new account.
type CreateAccountParams struct {
	Username     string
	Email        *string
	FullName     string
	PasswordHash string
	Roles        []string
	System       bool
	CreatedAt    time.Time
}

// AccountRepository defines persistence operations for credential-bearing accounts.
// Username and email lookups are expected to be already normalized by the caller.
type AccountRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateAccountParams, outboxEvent OutboxEvent) (domain.Account, error)
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	ExistsByUsernameOrEmail(ctx context.Context, username string, email *string) (bool, error)
	SetActive(ctx context.Context, accountID uuid.UUID, active bool, at time.Time) error
}

// MFARepository owns second-factor state: the shared secret, the enabled flag
// and the backup-code table.
type MFARepository interface {
	SaveTOTPSecret(ctx context.Context, accountID uuid.UUID, secret string, at time.Time) error
	EnableTwoFactor(ctx context.Context, accountID uuid.UUID, backupCodeHashes []string, at time.Time) error
	DisableTwoFactor(ctx context.Context, accountID uuid.UUID, at time.Time) error
	ListBackupCodes(ctx context.Context, accountID uuid.UUID) ([]domain.BackupCode, error)
	// DeleteBackupCode reports false when the code was already consumed.
	DeleteBackupCode(ctx context.Context, codeID uuid.UUID) (bool, error)
}

// SessionCreateParams captures metadata required to create a session record.
type SessionCreateParams struct {
	AccountID        uuid.UUID
	RefreshTokenHash string
	UserAgent        string
	IPAddress        string
	DeviceID         *string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// SessionRotateParams rewrites a session in place. ExpectedVersion must match
// the stored version or the rotation is rejected.
type SessionRotateParams struct {
	SessionID        uuid.UUID
	ExpectedVersion  int64
	RefreshTokenHash string
	ExpiresAt        time.Time
	RotatedAt        time.Time
	UserAgent        string
	IPAddress        string
}

// SessionFilter narrows unrevoked sessions of one account. A nil ActiveAt
// includes expired rows.
type SessionFilter struct {
	AccountID uuid.UUID
	ActiveAt  *time.Time
}

// SessionRepository manages persistent session lifecycle. Sessions are never
// looked up by token value; callers scan an owner's candidates and compare hashes.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	ListUnrevoked(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	Rotate(ctx context.Context, params SessionRotateParams) (domain.Session, error)
	Revoke(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, error)
	DeleteReapable(ctx context.Context, policy domain.ReapPolicy) (int64, error)
}

// LoginAttemptRepository stores login outcomes for audit.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is a claimed event awaiting delivery.
type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	CreatedAt    time.Time
}

// OutboxClaim leases pending events to one relay pass. Claimed records come
// back grouped by partition key, oldest first within each key, and a key is
// skipped while an older event for it is leased to another pass.
type OutboxClaim struct {
	Token string
	Limit int
	Now   time.Time
	Until time.Time
}

// OutboxRepository controls the publish-retry workflow for domain events.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimPending(ctx context.Context, claim OutboxClaim) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	// Release drops a lease without counting a delivery attempt.
	Release(ctx context.Context, outboxID uuid.UUID, claimToken string) error
}
