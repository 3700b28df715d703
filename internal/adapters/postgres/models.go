package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID        uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey"`
	Username         string    `gorm:"column:username;uniqueIndex"`
	Email            *string   `gorm:"column:email;uniqueIndex"`
	FullName         string    `gorm:"column:full_name"`
	PasswordHash     string    `gorm:"column:password_hash"`
	Roles            []string  `gorm:"column:roles;type:jsonb;serializer:json"`
	TwoFactorEnabled bool      `gorm:"column:two_factor_enabled"`
	TwoFactorSecret  *string   `gorm:"column:two_factor_secret"`
	IsActive         bool      `gorm:"column:is_active"`
	SystemAccount    bool      `gorm:"column:system_account"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type backupCodeModel struct {
	CodeID    uuid.UUID `gorm:"column:code_id;type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"column:account_id;type:uuid;index"`
	CodeHash  string    `gorm:"column:code_hash"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (backupCodeModel) TableName() string { return "backup_codes" }

type sessionModel struct {
	SessionID        uuid.UUID  `gorm:"column:session_id;type:uuid;primaryKey"`
	AccountID        uuid.UUID  `gorm:"column:account_id;type:uuid;index"`
	RefreshTokenHash string     `gorm:"column:refresh_token_hash"`
	UserAgent        string     `gorm:"column:user_agent"`
	IPAddress        *string    `gorm:"column:ip_address"`
	DeviceID         *string    `gorm:"column:device_id"`
	ExpiresAt        time.Time  `gorm:"column:expires_at"`
	Revoked          bool       `gorm:"column:revoked"`
	LastRotatedAt    *time.Time `gorm:"column:last_rotated_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
	Version          int64      `gorm:"column:version"`
}

func (sessionModel) TableName() string { return "sessions" }

type loginAttemptModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID     *uuid.UUID `gorm:"column:account_id;type:uuid"`
	Username      string     `gorm:"column:username"`
	AttemptAt     time.Time  `gorm:"column:attempt_at"`
	IPAddress     *string    `gorm:"column:ip_address"`
	UserAgent     string     `gorm:"column:user_agent"`
	Status        string     `gorm:"column:status"`
	FailureReason string     `gorm:"column:failure_reason"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }
