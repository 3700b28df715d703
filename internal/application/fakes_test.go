package application_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/security"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const testInspectorKey = "inspector-shared-key"

type fixture struct {
	service  *application.Service
	clock    *fakeClock
	accounts *fakeAccounts
	sessions *fakeSessions
	outbox   *fakeOutbox
	attempts *fakeLoginAttempts
	lockouts *fakeLockouts
	totp     *security.TOTPAuthenticator
}

func defaultTestConfig() application.Config {
	return application.Config{
		DefaultRole:          domain.RoleUser,
		SessionTTL:           7 * 24 * time.Hour,
		RevokedRetention:     7 * 24 * time.Hour,
		IdleRetention:        30 * 24 * time.Hour,
		FailedLoginThreshold: 5,
		LockoutDuration:      15 * time.Minute,
		BackupCodeCount:      10,
		InspectorAccessKey:   testInspectorKey,
		InspectorUsername:    "inspector",
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	accounts := &fakeAccounts{
		byID:        make(map[uuid.UUID]domain.Account),
		backupCodes: make(map[uuid.UUID]domain.BackupCode),
	}
	sessions := &fakeSessions{byID: make(map[uuid.UUID]domain.Session)}
	outbox := &fakeOutbox{}
	attempts := &fakeLoginAttempts{}
	lockouts := &fakeLockouts{state: make(map[string]ports.LockoutState)}

	issuer, err := security.NewHMACTokenIssuer("inspection-auth-test", map[ports.TokenClass]security.TokenClassConfig{
		ports.TokenClassAccess:    {Secret: "access-secret", TTL: 15 * time.Minute},
		ports.TokenClassRefresh:   {Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
		ports.TokenClassTwoFactor: {Secret: "twofactor-secret", TTL: 5 * time.Minute},
	}, clock.Now)
	if err != nil {
		panic(err)
	}
	totp := security.NewTOTPAuthenticator("Inspection Test")
	hasher := security.NewBcryptHasher(4)

	svc := application.NewService(application.Dependencies{
		Config:        cfg,
		Accounts:      accounts,
		Sessions:      sessions,
		MFA:           accounts,
		LoginAttempts: attempts,
		Outbox:        outbox,
		Lockouts:      lockouts,
		Hasher:        hasher,
		TokenHasher:   security.NewTokenHasher(4),
		Tokens:        issuer,
		TOTP:          totp,
		Now:           clock.Now,
	})

	return &fixture{
		service:  svc,
		clock:    clock,
		accounts: accounts,
		sessions: sessions,
		outbox:   outbox,
		attempts: attempts,
		lockouts: lockouts,
		totp:     totp,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAccounts backs both the account and the second-factor ports, as the
// real store does with one database.
type fakeAccounts struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]domain.Account
	backupCodes map[uuid.UUID]domain.BackupCode
	events      []ports.OutboxEvent
}

func (f *fakeAccounts) CreateWithOutboxTx(_ context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == params.Username {
			return domain.Account{}, domain.ErrConflict
		}
		if params.Email != nil && a.Email != nil && *a.Email == *params.Email {
			return domain.Account{}, domain.ErrConflict
		}
	}
	a := domain.Account{
		AccountID:    uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Roles:        append([]string(nil), params.Roles...),
		IsActive:     true,
		System:       params.System,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	f.byID[a.AccountID] = a
	f.events = append(f.events, outboxEvent)
	return a, nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == username {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) GetByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) ExistsByUsernameOrEmail(_ context.Context, username string, email *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == username {
			return true, nil
		}
		if email != nil && a.Email != nil && *a.Email == *email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) SetActive(_ context.Context, accountID uuid.UUID, active bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = at
	f.byID[accountID] = a
	return nil
}

func (f *fakeAccounts) SaveTOTPSecret(_ context.Context, accountID uuid.UUID, secret string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.TwoFactorSecret = &secret
	a.UpdatedAt = at
	f.byID[accountID] = a
	return nil
}

func (f *fakeAccounts) EnableTwoFactor(_ context.Context, accountID uuid.UUID, hashes []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.TwoFactorEnabled = true
	a.UpdatedAt = at
	f.byID[accountID] = a
	f.deleteCodesLocked(accountID)
	for _, h := range hashes {
		id := uuid.New()
		f.backupCodes[id] = domain.BackupCode{CodeID: id, AccountID: accountID, CodeHash: h, CreatedAt: at}
	}
	return nil
}

func (f *fakeAccounts) DisableTwoFactor(_ context.Context, accountID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.TwoFactorEnabled = false
	a.TwoFactorSecret = nil
	a.UpdatedAt = at
	f.byID[accountID] = a
	f.deleteCodesLocked(accountID)
	return nil
}

func (f *fakeAccounts) ListBackupCodes(_ context.Context, accountID uuid.UUID) ([]domain.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BackupCode, 0)
	for _, c := range f.backupCodes {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAccounts) DeleteBackupCode(_ context.Context, codeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.backupCodes[codeID]; !ok {
		return false, nil
	}
	delete(f.backupCodes, codeID)
	return true, nil
}

func (f *fakeAccounts) deleteCodesLocked(accountID uuid.UUID) {
	for id, c := range f.backupCodes {
		if c.AccountID == accountID {
			delete(f.backupCodes, id)
		}
	}
}

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeAccounts) backupCodeCount(accountID uuid.UUID) int {
	codes, _ := f.ListBackupCodes(context.Background(), accountID)
	return len(codes)
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
	// beforeRotate lets a test interleave a competing write.
	beforeRotate func(*domain.Session)
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.Session{
		SessionID:        uuid.New(),
		AccountID:        params.AccountID,
		RefreshTokenHash: params.RefreshTokenHash,
		UserAgent:        params.UserAgent,
		IPAddress:        params.IPAddress,
		DeviceID:         params.DeviceID,
		ExpiresAt:        params.ExpiresAt,
		CreatedAt:        params.CreatedAt,
		UpdatedAt:        params.CreatedAt,
		Version:          1,
	}
	f.byID[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) ListUnrevoked(_ context.Context, filter ports.SessionFilter) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Session, 0)
	for _, s := range f.byID {
		if s.AccountID != filter.AccountID || s.Revoked {
			continue
		}
		if filter.ActiveAt != nil && !s.ExpiresAt.After(*filter.ActiveAt) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeSessions) Rotate(_ context.Context, params ports.SessionRotateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[params.SessionID]
	if ok && f.beforeRotate != nil {
		f.beforeRotate(&s)
		f.byID[s.SessionID] = s
	}
	if !ok || s.Revoked || s.Version != params.ExpectedVersion {
		return domain.Session{}, domain.ErrConflict
	}
	rotatedAt := params.RotatedAt
	s.RefreshTokenHash = params.RefreshTokenHash
	s.ExpiresAt = params.ExpiresAt
	s.LastRotatedAt = &rotatedAt
	s.UpdatedAt = rotatedAt
	s.UserAgent = params.UserAgent
	s.IPAddress = params.IPAddress
	s.Version++
	f.byID[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) Revoke(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Revoked = true
	s.UpdatedAt = at
	f.byID[sessionID] = s
	return nil
}

func (f *fakeSessions) RevokeAllByAccount(_ context.Context, accountID uuid.UUID, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.byID {
		if s.AccountID != accountID || s.Revoked {
			continue
		}
		s.Revoked = true
		s.UpdatedAt = at
		f.byID[id] = s
		n++
	}
	return n, nil
}

func (f *fakeSessions) DeleteReapable(_ context.Context, policy domain.ReapPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.byID {
		if s.Reapable(policy) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) put(s domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.SessionID] = s
}

func (f *fakeSessions) get(id uuid.UUID) (domain.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	return s, ok
}

func (f *fakeSessions) countAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeSessions) countFor(accountID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.byID {
		if s.AccountID == accountID {
			n++
		}
	}
	return n
}

type fakeLoginAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimPending(context.Context, ports.OutboxClaim) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) Release(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeLockouts struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
	// err simulates an unreachable lockout store.
	err error
}

func (f *fakeLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ports.LockoutState{}, f.err
	}
	return f.state[key], nil
}

func (f *fakeLockouts) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ports.LockoutState{}, f.err
	}
	st := f.state[key]
	st.FailedCount++
	if st.FailedCount >= threshold {
		lockUntil := now.Add(lockoutWindow)
		st.LockedUntil = &lockUntil
	}
	f.state[key] = st
	return st, nil
}

func (f *fakeLockouts) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.state, key)
	return nil
}
