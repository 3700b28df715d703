package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const twoFactorRequiredMessage = "Two-factor authentication required"

// Login validates credentials and either pauses for a second factor or
// issues a session. No session exists while a second factor is pending.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	username := domain.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	lockKey := "login:" + username
	if err := s.checkLockout(ctx, "login", lockKey); err != nil {
		return LoginResult{}, err
	}

	account, err := s.ValidateCredentials(ctx, username, req.Password)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			return LoginResult{}, err
		}
		s.recordAttempt(ctx, nil, username, req.Client, domain.LoginStatusFailure, "invalid_credentials")
		if lockErr := s.registerFailure(ctx, "login", lockKey); lockErr != nil {
			return LoginResult{}, lockErr
		}
		return LoginResult{}, err
	}
	s.clearLockout(ctx, lockKey)

	if account.TwoFactorEnabled {
		tempToken, _, err := s.tokens.Sign(ports.TokenClassTwoFactor, ports.TokenClaims{
			Subject:  account.AccountID,
			IssuedAt: s.nowFn(),
		})
		if err != nil {
			return LoginResult{}, fmt.Errorf("sign two-factor token: %w", err)
		}
		s.recordAttempt(ctx, &account.AccountID, username, req.Client, domain.LoginStatusSuccess, "second_factor_required")
		return LoginResult{
			Requires2FA: true,
			TempToken:   tempToken,
			Message:     twoFactorRequiredMessage,
		}, nil
	}

	grant, err := s.issueSession(ctx, account, req.Client)
	if err != nil {
		return LoginResult{}, err
	}
	s.recordAttempt(ctx, &account.AccountID, username, req.Client, domain.LoginStatusSuccess, "")
	return LoginResult{Session: &grant}, nil
}

// VerifyTwoFactor completes a paused login. The temporary token must be of
// the two-factor class and still within its lifetime.
func (s *Service) VerifyTwoFactor(ctx context.Context, req VerifyTwoFactorRequest) (SessionGrant, error) {
	claims, err := s.tokens.Verify(ports.TokenClassTwoFactor, strings.TrimSpace(req.TempToken))
	if err != nil {
		return SessionGrant{}, err
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SessionGrant{}, domain.ErrInvalidToken
		}
		return SessionGrant{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return SessionGrant{}, domain.ErrAccountDisabled
	}
	if !account.TwoFactorEnabled {
		return SessionGrant{}, fmt.Errorf("%w: two-factor authentication is not enabled", domain.ErrUnauthorized)
	}

	lockKey := "2fa:" + account.AccountID.String()
	if err := s.checkLockout(ctx, "verify_2fa", lockKey); err != nil {
		return SessionGrant{}, err
	}
	ok, err := s.VerifyTwoFactorCode(ctx, account, req.Code)
	if err != nil {
		return SessionGrant{}, err
	}
	if !ok {
		s.recordAttempt(ctx, &account.AccountID, account.Username, req.Client, domain.LoginStatusFailure, "invalid_code")
		if lockErr := s.registerFailure(ctx, "verify_2fa", lockKey); lockErr != nil {
			return SessionGrant{}, lockErr
		}
		return SessionGrant{}, domain.ErrInvalidCode
	}
	s.clearLockout(ctx, lockKey)

	grant, err := s.issueSession(ctx, account, req.Client)
	if err != nil {
		return SessionGrant{}, err
	}
	s.recordAttempt(ctx, &account.AccountID, account.Username, req.Client, domain.LoginStatusSuccess, "")
	return grant, nil
}

// RefreshTokens rotates the session that owns refreshToken in place. A
// well-formed token with no live session behind it fails with ErrSessionInvalid.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string, client ClientSignature) (SessionGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return SessionGrant{}, domain.ErrInvalidToken
	}
	claims, err := s.tokens.Verify(ports.TokenClassRefresh, refreshToken)
	if err != nil {
		return SessionGrant{}, err
	}

	now := s.nowFn()
	session, err := s.findSessionByToken(ctx, claims.Subject, refreshToken, &now)
	if err != nil {
		return SessionGrant{}, err
	}
	if session == nil {
		appLogger().WarnContext(ctx, "refresh token has no live session",
			"operation", "refresh_tokens",
			"outcome", "rejected",
			"account_id", claims.Subject,
		)
		return SessionGrant{}, domain.ErrSessionInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SessionGrant{}, domain.ErrSessionInvalid
		}
		return SessionGrant{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return SessionGrant{}, domain.ErrAccountDisabled
	}

	pair, err := s.mintTokenPair(account, now)
	if err != nil {
		return SessionGrant{}, err
	}
	refreshHash, err := s.tokenHasher.Hash(pair.RefreshToken)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("hash refresh token: %w", err)
	}

	rotated, err := s.sessions.Rotate(ctx, ports.SessionRotateParams{
		SessionID:        session.SessionID,
		ExpectedVersion:  session.Version,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		RotatedAt:        now,
		UserAgent:        client.UserAgent,
		IPAddress:        client.IPAddress,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			appLogger().WarnContext(ctx, "concurrent refresh lost rotation race",
				"operation", "refresh_tokens",
				"outcome", "rejected",
				"session_id", session.SessionID,
			)
			return SessionGrant{}, domain.ErrSessionInvalid
		}
		return SessionGrant{}, fmt.Errorf("rotate session: %w", err)
	}

	pair.SessionID = rotated.SessionID
	pair.RefreshExpiresAt = rotated.ExpiresAt
	pair.Account = toAccountView(account)
	return pair, nil
}

// Logout revokes the session owning refreshToken. The token must verify as a
// refresh token; a valid one with no matching session is a silent no-op.
func (s *Service) Logout(ctx context.Context, accountID uuid.UUID, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if _, err := s.tokens.Verify(ports.TokenClassRefresh, refreshToken); err != nil {
		return err
	}
	session, err := s.findSessionByToken(ctx, accountID, refreshToken, nil)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, session.SessionID, s.nowFn()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.enqueueEvent(ctx, domain.EventSessionRevoked, accountID, map[string]any{
		"session_id": session.SessionID.String(),
		"reason":     "logout",
	})
	return nil
}

// AuthenticateAccessToken verifies an access-class token.
func (s *Service) AuthenticateAccessToken(_ context.Context, token string) (ports.TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ports.TokenClaims{}, domain.ErrUnauthorized
	}
	return s.tokens.Verify(ports.TokenClassAccess, token)
}

// issueSession mints a token pair and persists the hashed refresh token. A
// login is never reported successful without a stored session.
func (s *Service) issueSession(ctx context.Context, account domain.Account, client ClientSignature) (SessionGrant, error) {
	now := s.nowFn()
	grant, err := s.mintTokenPair(account, now)
	if err != nil {
		return SessionGrant{}, err
	}
	refreshHash, err := s.tokenHasher.Hash(grant.RefreshToken)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("hash refresh token: %w", err)
	}

	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		AccountID:        account.AccountID,
		RefreshTokenHash: refreshHash,
		UserAgent:        client.UserAgent,
		IPAddress:        client.IPAddress,
		DeviceID:         client.DeviceID,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		CreatedAt:        now,
	})
	if err != nil {
		appLogger().ErrorContext(ctx, "failed to persist session",
			"operation", "issue_session",
			"outcome", "failure",
			"account_id", account.AccountID,
			"error", err,
		)
		return SessionGrant{}, fmt.Errorf("create session: %w", err)
	}

	s.enqueueEvent(ctx, domain.EventSessionCreated, account.AccountID, map[string]any{
		"session_id": session.SessionID.String(),
		"ip_address": client.IPAddress,
	})

	grant.SessionID = session.SessionID
	grant.RefreshExpiresAt = session.ExpiresAt
	grant.Account = toAccountView(account)
	return grant, nil
}

func (s *Service) mintTokenPair(account domain.Account, now time.Time) (SessionGrant, error) {
	claims := ports.TokenClaims{
		Subject:  account.AccountID,
		Username: account.Username,
		Roles:    account.Roles,
		IssuedAt: now,
	}
	access, accessExp, err := s.tokens.Sign(ports.TokenClassAccess, claims)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.Sign(ports.TokenClassRefresh, claims)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return SessionGrant{
		IssuedAt:         now,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// findSessionByToken scans the owner's unrevoked sessions and compares
// hashes. Tokens are never stored or indexed in plaintext.
func (s *Service) findSessionByToken(ctx context.Context, accountID uuid.UUID, token string, activeAt *time.Time) (*domain.Session, error) {
	candidates, err := s.sessions.ListUnrevoked(ctx, ports.SessionFilter{
		AccountID: accountID,
		ActiveAt:  activeAt,
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range candidates {
		if s.tokenHasher.Compare(candidates[i].RefreshTokenHash, token) == nil {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
