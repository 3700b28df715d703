package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

// checkLockout rejects the call while key is locked. A lockout store outage
// does not block authentication.
func (s *Service) checkLockout(ctx context.Context, operation, key string) error {
	if s.lockouts == nil {
		return nil
	}
	state, err := s.lockouts.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		appLogger().WarnContext(ctx, "lockout active",
			"operation", operation,
			"outcome", "blocked",
			"lockout_key", key,
			"locked_until", state.LockedUntil,
		)
		return domain.ErrAccountLocked
	}
	return nil
}

// registerFailure counts a failed attempt and reports ErrAccountLocked once
// the threshold is crossed. Like checkLockout it fails open.
func (s *Service) registerFailure(ctx context.Context, operation, key string) error {
	if s.lockouts == nil || s.cfg.FailedLoginThreshold <= 0 {
		return nil
	}
	now := s.nowFn()
	state, err := s.lockouts.RecordFailure(ctx, key, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
	if err != nil {
		appLogger().WarnContext(ctx, "failed to update lockout state",
			"operation", operation,
			"outcome", "degraded",
			"error_code", "LOCKOUT_STATE_UNAVAILABLE",
			"lockout_key", key,
			"error", err,
		)
		return nil
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		appLogger().WarnContext(ctx, "lockout triggered",
			"operation", operation,
			"outcome", "blocked",
			"lockout_key", key,
			"locked_until", state.LockedUntil,
		)
		return domain.ErrAccountLocked
	}
	return nil
}

func (s *Service) clearLockout(ctx context.Context, key string) {
	if s.lockouts == nil {
		return
	}
	_ = s.lockouts.Clear(ctx, key)
}

// recordAttempt stores a login outcome for audit; write failures are logged only.
func (s *Service) recordAttempt(ctx context.Context, accountID *uuid.UUID, username string, client ClientSignature, status, reason string) {
	if s.loginAttempts == nil {
		return
	}
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		AccountID:     accountID,
		Username:      username,
		AttemptAt:     s.nowFn(),
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		Status:        status,
		FailureReason: reason,
	}); err != nil {
		appLogger().WarnContext(ctx, "failed to persist login attempt",
			"operation", "record_login_attempt",
			"outcome", "failure",
			"reason", reason,
			"error", err,
		)
	}
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) (string, error) {
	raw := make([]byte, bytesLen)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// generateBackupCodes returns n codes of 8 uppercase hex characters.
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := randomHex(4)
		if err != nil {
			return nil, err
		}
		code = strings.ToUpper(code)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
