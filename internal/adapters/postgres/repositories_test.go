package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := GormConfig()
	cfg.PrepareStmt = false
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func createAccount(t *testing.T, repos Repositories, username string, email *string) domain.Account {
	t.Helper()

	now := time.Now().UTC()
	account, err := repos.Accounts.CreateWithOutboxTx(context.Background(), ports.CreateAccountParams{
		Username:     username,
		Email:        email,
		FullName:     "Test " + username,
		PasswordHash: "hash",
		Roles:        []string{domain.RoleUser, "supervisor"},
		CreatedAt:    now,
	}, ports.OutboxEvent{
		EventID:    uuid.New(),
		EventType:  "auth.account.registered",
		Payload:    []byte(`{"username":"` + username + `"}`),
		OccurredAt: now,
	})
	require.NoError(t, err)
	return account
}

func TestAccountRepositoryCreateAndLookup(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()
	email := "alice@example.com"

	created := createAccount(t, repos, "alice", &email)
	assert.True(t, created.IsActive)

	byName, err := repos.Accounts.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.AccountID, byName.AccountID)
	assert.Equal(t, []string{domain.RoleUser, "supervisor"}, byName.Roles)
	require.NotNil(t, byName.Email)
	assert.Equal(t, email, *byName.Email)

	byID, err := repos.Accounts.GetByID(ctx, created.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	var outboxCount int64
	require.NoError(t, db.Model(&authOutboxModel{}).Where("partition_key = ?", created.AccountID.String()).Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)

	_, err = repos.Accounts.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountRepositoryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	email := "alice@example.com"
	createAccount(t, repos, "alice", &email)

	exists, err := repos.Accounts.ExistsByUsernameOrEmail(ctx, "someone-else", &email)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repos.Accounts.ExistsByUsernameOrEmail(ctx, "bob", nil)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repos.Accounts.CreateWithOutboxTx(ctx, ports.CreateAccountParams{
		Username:     "alice",
		PasswordHash: "hash",
		Roles:        []string{domain.RoleUser},
		CreatedAt:    time.Now().UTC(),
	}, ports.OutboxEvent{EventID: uuid.New(), EventType: "auth.account.registered", OccurredAt: time.Now().UTC()})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAccountRepositorySetActive(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	account := createAccount(t, repos, "carol", nil)

	require.NoError(t, repos.Accounts.SetActive(ctx, account.AccountID, false, time.Now().UTC()))
	loaded, err := repos.Accounts.GetByID(ctx, account.AccountID)
	require.NoError(t, err)
	assert.False(t, loaded.IsActive)

	assert.ErrorIs(t, repos.Accounts.SetActive(ctx, uuid.New(), false, time.Now().UTC()), domain.ErrNotFound)
}

func TestMFARepositoryLifecycle(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	account := createAccount(t, repos, "dave", nil)
	now := time.Now().UTC()

	assert.ErrorIs(t, repos.MFA.EnableTwoFactor(ctx, account.AccountID, []string{"h1"}, now), domain.ErrConflict, "enable without secret")

	require.NoError(t, repos.MFA.SaveTOTPSecret(ctx, account.AccountID, "JBSWY3DPEHPK3PXP", now))
	require.NoError(t, repos.MFA.EnableTwoFactor(ctx, account.AccountID, []string{"h1", "h2", "h3"}, now))

	loaded, err := repos.Accounts.GetByID(ctx, account.AccountID)
	require.NoError(t, err)
	assert.True(t, loaded.TwoFactorEnabled)
	require.True(t, loaded.HasTwoFactorSecret())

	assert.ErrorIs(t, repos.MFA.SaveTOTPSecret(ctx, account.AccountID, "OTHER", now), domain.ErrConflict)

	codes, err := repos.MFA.ListBackupCodes(ctx, account.AccountID)
	require.NoError(t, err)
	require.Len(t, codes, 3)

	deleted, err := repos.MFA.DeleteBackupCode(ctx, codes[0].CodeID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repos.MFA.DeleteBackupCode(ctx, codes[0].CodeID)
	require.NoError(t, err)
	assert.False(t, deleted, "a backup code can only be consumed once")

	require.NoError(t, repos.MFA.DisableTwoFactor(ctx, account.AccountID, now))
	loaded, err = repos.Accounts.GetByID(ctx, account.AccountID)
	require.NoError(t, err)
	assert.False(t, loaded.TwoFactorEnabled)
	assert.Nil(t, loaded.TwoFactorSecret)
	codes, err = repos.MFA.ListBackupCodes(ctx, account.AccountID)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestSessionRepositoryRotateInPlace(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	account := createAccount(t, repos, "erin", nil)
	now := time.Now().UTC().Truncate(time.Second)

	session, err := repos.Sessions.Create(ctx, ports.SessionCreateParams{
		AccountID:        account.AccountID,
		RefreshTokenHash: "hash-1",
		UserAgent:        "tablet",
		IPAddress:        "10.0.0.1",
		ExpiresAt:        now.Add(7 * 24 * time.Hour),
		CreatedAt:        now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.Version)

	rotatedAt := now.Add(time.Hour)
	rotated, err := repos.Sessions.Rotate(ctx, ports.SessionRotateParams{
		SessionID:        session.SessionID,
		ExpectedVersion:  session.Version,
		RefreshTokenHash: "hash-2",
		ExpiresAt:        rotatedAt.Add(7 * 24 * time.Hour),
		RotatedAt:        rotatedAt,
		UserAgent:        "tablet-2",
		IPAddress:        "10.0.0.2",
	})
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, rotated.SessionID)
	assert.Equal(t, "hash-2", rotated.RefreshTokenHash)
	assert.Equal(t, int64(2), rotated.Version)
	require.NotNil(t, rotated.LastRotatedAt)
	assert.Equal(t, "10.0.0.2", rotated.IPAddress)

	_, err = repos.Sessions.Rotate(ctx, ports.SessionRotateParams{
		SessionID:        session.SessionID,
		ExpectedVersion:  session.Version,
		RefreshTokenHash: "hash-stale",
		ExpiresAt:        rotatedAt.Add(7 * 24 * time.Hour),
		RotatedAt:        rotatedAt,
	})
	assert.ErrorIs(t, err, domain.ErrConflict, "stale version must lose the race")

	active := now
	sessions, err := repos.Sessions.ListUnrevoked(ctx, ports.SessionFilter{AccountID: account.AccountID, ActiveAt: &active})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "hash-2", sessions[0].RefreshTokenHash)
}

func TestSessionRepositoryRevoke(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	account := createAccount(t, repos, "frank", nil)
	now := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		s, err := repos.Sessions.Create(ctx, ports.SessionCreateParams{
			AccountID:        account.AccountID,
			RefreshTokenHash: fmt.Sprintf("hash-%d", i),
			ExpiresAt:        now.Add(time.Hour),
			CreatedAt:        now,
		})
		require.NoError(t, err)
		ids = append(ids, s.SessionID)
	}

	require.NoError(t, repos.Sessions.Revoke(ctx, ids[0], now))
	sessions, err := repos.Sessions.ListUnrevoked(ctx, ports.SessionFilter{AccountID: account.AccountID})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	_, err = repos.Sessions.Rotate(ctx, ports.SessionRotateParams{SessionID: ids[0], ExpectedVersion: 1, RotatedAt: now})
	assert.ErrorIs(t, err, domain.ErrConflict, "revoked sessions cannot rotate")

	count, err := repos.Sessions.RevokeAllByAccount(ctx, account.AccountID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSessionRepositoryDeleteReapable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()
	account := createAccount(t, repos, "grace", nil)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	rotatedRecently := now.Add(-2 * day)
	rotatedLongAgo := now.Add(-31 * day)

	rows := map[string]sessionModel{
		"expired-yesterday": {ExpiresAt: now.Add(-day), CreatedAt: now.Add(-8 * day), UpdatedAt: now.Add(-8 * day)},
		"revoked-3-days":    {ExpiresAt: now.Add(4 * day), Revoked: true, CreatedAt: now.Add(-3 * day), UpdatedAt: now.Add(-3 * day)},
		"revoked-8-days":    {ExpiresAt: now.Add(day), Revoked: true, CreatedAt: now.Add(-8 * day), UpdatedAt: now.Add(-8 * day)},
		"fresh":             {ExpiresAt: now.Add(7 * day), CreatedAt: now, UpdatedAt: now},
		"idle-never-rotate": {ExpiresAt: now.Add(day), CreatedAt: now.Add(-31 * day), UpdatedAt: now.Add(-31 * day)},
		"rotated-recently":  {ExpiresAt: now.Add(5 * day), CreatedAt: now.Add(-40 * day), UpdatedAt: rotatedRecently, LastRotatedAt: &rotatedRecently},
		"rotated-long-ago":  {ExpiresAt: now.Add(day), CreatedAt: now.Add(-60 * day), UpdatedAt: rotatedLongAgo, LastRotatedAt: &rotatedLongAgo},
	}
	for agent, row := range rows {
		row.SessionID = uuid.New()
		row.AccountID = account.AccountID
		row.RefreshTokenHash = "hash"
		row.UserAgent = agent
		row.Version = 1
		require.NoError(t, db.Create(&row).Error)
	}

	deleted, err := repos.Sessions.DeleteReapable(ctx, domain.ReapPolicy{
		Now:              now,
		RevokedRetention: 7 * day,
		IdleRetention:    30 * day,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	var remaining []string
	require.NoError(t, db.Model(&sessionModel{}).Order("user_agent").Pluck("user_agent", &remaining).Error)
	assert.Equal(t, []string{"fresh", "revoked-3-days", "rotated-recently"}, remaining)
}

func TestLoginAttemptRepositoryInsert(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repos := NewRepositories(db)
	account := createAccount(t, repos, "heidi", nil)

	require.NoError(t, repos.LoginAttempts.Insert(context.Background(), domain.LoginAttempt{
		AccountID:     &account.AccountID,
		Username:      "heidi",
		AttemptAt:     time.Now().UTC(),
		IPAddress:     "10.1.1.1",
		Status:        domain.LoginStatusFailure,
		FailureReason: "invalid_credentials",
	}))

	var count int64
	require.NoError(t, db.Model(&loginAttemptModel{}).Where("username = ?", "heidi").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSplitStatementsSkipsCommentsAndBlanks(t *testing.T) {
	t.Parallel()

	stmts := splitStatements("-- header\nCREATE TABLE a (id INT);\n\nCREATE INDEX b ON a (id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, stmts)
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	t.Parallel()

	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		raw, err := migrationFS.ReadFile("migrations/" + e.Name())
		require.NoError(t, err)
		assert.NotEmpty(t, splitStatements(string(raw)), e.Name())
	}
}

func enqueueAt(t *testing.T, repos Repositories, account, eventType string, at time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	require.NoError(t, repos.Outbox.Enqueue(context.Background(), ports.OutboxEvent{
		EventID:      id,
		EventType:    eventType,
		PartitionKey: account,
		Payload:      []byte(`{}`),
		OccurredAt:   at,
	}))
	return id
}

func claimedIDs(records []ports.OutboxRecord) []uuid.UUID {
	out := make([]uuid.UUID, len(records))
	for i, r := range records {
		out[i] = r.OutboxID
	}
	return out
}

func TestOutboxClaimGroupsByAccountOldestFirst(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	bRevoked := enqueueAt(t, repos, "acct-b", domain.EventSessionRevoked, base)
	aCreated := enqueueAt(t, repos, "acct-a", domain.EventSessionCreated, base.Add(time.Second))
	bCreated := enqueueAt(t, repos, "acct-b", domain.EventSessionCreated, base.Add(2*time.Second))
	aRevoked := enqueueAt(t, repos, "acct-a", domain.EventSessionRevoked, base.Add(3*time.Second))

	now := base.Add(time.Minute)
	records, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-1", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{aCreated, aRevoked, bRevoked, bCreated}, claimedIDs(records))
	assert.Equal(t, domain.EventSessionCreated, records[0].EventType)
	assert.Equal(t, "acct-a", records[0].PartitionKey)

	again, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-2", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, again, "leased rows are not handed out twice")
}

func TestOutboxClaimWaitsBehindAccountLease(t *testing.T) {
	t.Parallel()

	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)

	revoked := enqueueAt(t, repos, "acct-a", domain.EventSessionRevoked, base)
	first, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-1", Limit: 1, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{revoked}, claimedIDs(first))

	created := enqueueAt(t, repos, "acct-a", domain.EventSessionCreated, base.Add(time.Second))
	other := enqueueAt(t, repos, "acct-b", domain.EventSessionCreated, base.Add(2*time.Second))

	second, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-2", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{other}, claimedIDs(second), "acct-a waits for its leased revocation")

	require.NoError(t, repos.Outbox.MarkPublished(ctx, revoked, "pass-1", now))
	third, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-3", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{created}, claimedIDs(third))
}

func TestOutboxSettleRequiresLiveLease(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)

	id := enqueueAt(t, repos, "acct-a", domain.EventTwoFactorDisabled, base)
	_, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-1", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, repos.Outbox.MarkFailed(ctx, id, "stale-pass", "broker down", now))
	require.NoError(t, repos.Outbox.MarkFailed(ctx, id, "pass-1", "broker down", now))

	var row authOutboxModel
	require.NoError(t, db.First(&row, "outbox_id = ?", id).Error)
	assert.Equal(t, 1, row.RetryCount)
	assert.Nil(t, row.ClaimToken)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "broker down", *row.LastError)

	_, err = repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-2", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.NoError(t, repos.Outbox.Release(ctx, id, "pass-2"))
	require.NoError(t, db.First(&row, "outbox_id = ?", id).Error)
	assert.Equal(t, 1, row.RetryCount, "release does not count an attempt")
	assert.Nil(t, row.ClaimUntil)

	_, err = repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-3", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.NoError(t, repos.Outbox.MarkDeadLettered(ctx, id, "pass-3", "attempt limit", now))
	left, err := repos.Outbox.ClaimPending(ctx, ports.OutboxClaim{Token: "pass-4", Limit: 10, Now: now, Until: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, left)
}
