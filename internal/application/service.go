package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const serviceName = "inspection-auth-service"

// Config carries the policy knobs of the authentication core.
type Config struct {
	DefaultRole          string
	SessionTTL           time.Duration
	RevokedRetention     time.Duration
	IdleRetention        time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	BackupCodeCount      int
	InspectorAccessKey   string
	InspectorUsername    string
}

func (c Config) withDefaults() Config {
	if c.DefaultRole == "" {
		c.DefaultRole = domain.RoleUser
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.RevokedRetention <= 0 {
		c.RevokedRetention = 7 * 24 * time.Hour
	}
	if c.IdleRetention <= 0 {
		c.IdleRetention = 30 * 24 * time.Hour
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = 10
	}
	if c.InspectorUsername == "" {
		c.InspectorUsername = "inspector"
	}
	return c
}

// Service is the session lifecycle controller. It owns credential checks,
// second-factor enrollment, token issuance, refresh rotation and reaping.
type Service struct {
	cfg           Config
	accounts      ports.AccountRepository
	sessions      ports.SessionRepository
	mfa           ports.MFARepository
	loginAttempts ports.LoginAttemptRepository
	outbox        ports.OutboxRepository
	lockouts      ports.LockoutStore
	hasher        ports.PasswordHasher
	tokenHasher   ports.PasswordHasher
	tokens        ports.TokenIssuer
	totp          ports.TOTPProvider
	nowFn         func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string
}

type Dependencies struct {
	Config        Config
	Accounts      ports.AccountRepository
	Sessions      ports.SessionRepository
	MFA           ports.MFARepository
	LoginAttempts ports.LoginAttemptRepository
	Outbox        ports.OutboxRepository
	Lockouts      ports.LockoutStore
	Hasher        ports.PasswordHasher
	TokenHasher   ports.PasswordHasher
	Tokens        ports.TokenIssuer
	TOTP          ports.TOTPProvider
	Now           func() time.Time
}

func NewService(deps Dependencies) *Service {
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	tokenHasher := deps.TokenHasher
	if tokenHasher == nil {
		tokenHasher = deps.Hasher
	}
	return &Service{
		cfg:           deps.Config.withDefaults(),
		accounts:      deps.Accounts,
		sessions:      deps.Sessions,
		mfa:           deps.MFA,
		loginAttempts: deps.LoginAttempts,
		outbox:        deps.Outbox,
		lockouts:      deps.Lockouts,
		hasher:        deps.Hasher,
		tokenHasher:   tokenHasher,
		tokens:        deps.Tokens,
		totp:          deps.TOTP,
		nowFn:         nowFn,
	}
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "application",
		"layer", "application",
	)
}
