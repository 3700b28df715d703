// Package testkit wires the real adapters against embedded stores (SQLite
// and miniredis) for transport-level tests.
package testkit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/cache"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/postgres"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/security"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const InspectorKey = "testkit-inspector-key"

// Clock is a settable time source shared by the service and token issuer.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type Env struct {
	Service *application.Service
	Repos   postgres.Repositories
	DB      *gorm.DB
	Redis   *miniredis.Miniredis
	Clock   *Clock
}

// Config returns the policy used by NewEnv when none is supplied.
func Config() application.Config {
	return application.Config{
		SessionTTL:           7 * 24 * time.Hour,
		FailedLoginThreshold: 5,
		LockoutDuration:      15 * time.Minute,
		BackupCodeCount:      10,
		InspectorAccessKey:   InspectorKey,
	}
}

func NewEnv(t testing.TB, cfg application.Config) *Env {
	t.Helper()

	gormCfg := postgres.GormConfig()
	gormCfg.PrepareStmt = false
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), gormCfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := postgres.AutoMigrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &Clock{now: time.Now().UTC().Truncate(time.Second)}
	issuer, err := security.NewHMACTokenIssuer("inspection-auth-test", map[ports.TokenClass]security.TokenClassConfig{
		ports.TokenClassAccess:    {Secret: "testkit-access", TTL: 15 * time.Minute},
		ports.TokenClassRefresh:   {Secret: "testkit-refresh", TTL: 7 * 24 * time.Hour},
		ports.TokenClassTwoFactor: {Secret: "testkit-2fa", TTL: 5 * time.Minute},
	}, clock.Now)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	repos := postgres.NewRepositories(db)
	svc := application.NewService(application.Dependencies{
		Config:        cfg,
		Accounts:      repos.Accounts,
		Sessions:      repos.Sessions,
		MFA:           repos.MFA,
		LoginAttempts: repos.LoginAttempts,
		Outbox:        repos.Outbox,
		Lockouts:      cache.NewRedisLockoutStore(client),
		Hasher:        security.NewBcryptHasher(4),
		TokenHasher:   security.NewTokenHasher(4),
		Tokens:        issuer,
		TOTP:          security.NewTOTPAuthenticator("Inspection Test"),
		Now:           clock.Now,
	})

	return &Env{Service: svc, Repos: repos, DB: db, Redis: mr, Clock: clock}
}

// TOTPCode returns the current code for secret at the env clock.
func (e *Env) TOTPCode(t testing.TB, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, e.Clock.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}
