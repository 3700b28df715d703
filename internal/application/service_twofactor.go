package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

const (
	TwoFactorEnabledMessage  = "Two-factor authentication enabled"
	TwoFactorDisabledMessage = "Two-factor authentication disabled"
)

// SetupTwoFactor generates and stores a fresh shared secret. The second
// factor stays disabled until EnableTwoFactor confirms a code.
func (s *Service) SetupTwoFactor(ctx context.Context, accountID uuid.UUID) (TwoFactorSetupResponse, error) {
	account, err := s.loadActiveAccount(ctx, accountID)
	if err != nil {
		return TwoFactorSetupResponse{}, err
	}
	if account.TwoFactorEnabled {
		return TwoFactorSetupResponse{}, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}

	enrollment, err := s.totp.Enroll(account.Username)
	if err != nil {
		return TwoFactorSetupResponse{}, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.mfa.SaveTOTPSecret(ctx, account.AccountID, enrollment.Secret, s.nowFn()); err != nil {
		return TwoFactorSetupResponse{}, fmt.Errorf("store totp secret: %w", err)
	}

	return TwoFactorSetupResponse{
		Secret:     enrollment.Secret,
		QRCode:     enrollment.QRCode,
		OTPAuthURL: enrollment.OTPAuthURL,
	}, nil
}

// EnableTwoFactor confirms the pending secret with a TOTP code and returns
// the plaintext backup codes. They are never retrievable again.
func (s *Service) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, code string) (TwoFactorEnableResponse, error) {
	account, err := s.loadActiveAccount(ctx, accountID)
	if err != nil {
		return TwoFactorEnableResponse{}, err
	}
	if !account.HasTwoFactorSecret() {
		return TwoFactorEnableResponse{}, fmt.Errorf("%w: two-factor setup has not been started", domain.ErrInvalidInput)
	}
	if account.TwoFactorEnabled {
		return TwoFactorEnableResponse{}, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}
	if !s.totp.Validate(*account.TwoFactorSecret, strings.TrimSpace(code), s.nowFn()) {
		return TwoFactorEnableResponse{}, domain.ErrInvalidCode
	}

	codes, err := generateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return TwoFactorEnableResponse{}, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := s.hasher.Hash(c)
		if err != nil {
			return TwoFactorEnableResponse{}, fmt.Errorf("hash backup code: %w", err)
		}
		hashes = append(hashes, h)
	}

	if err := s.mfa.EnableTwoFactor(ctx, account.AccountID, hashes, s.nowFn()); err != nil {
		return TwoFactorEnableResponse{}, fmt.Errorf("enable two-factor: %w", err)
	}
	s.enqueueEvent(ctx, domain.EventTwoFactorEnabled, account.AccountID, nil)
	appLogger().InfoContext(ctx, "two-factor enabled",
		"operation", "enable_2fa",
		"outcome", "success",
		"account_id", account.AccountID,
	)

	return TwoFactorEnableResponse{
		Message:     TwoFactorEnabledMessage,
		BackupCodes: codes,
	}, nil
}

// VerifyTwoFactorCode accepts a current TOTP code or an unused backup code.
// A matched backup code is consumed.
func (s *Service) VerifyTwoFactorCode(ctx context.Context, account domain.Account, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	if account.HasTwoFactorSecret() && s.totp.Validate(*account.TwoFactorSecret, code, s.nowFn()) {
		return true, nil
	}
	return s.consumeBackupCode(ctx, account.AccountID, code)
}

// consumeBackupCode deletes the first matching code. Only the caller whose
// delete removes the row counts as a match.
func (s *Service) consumeBackupCode(ctx context.Context, accountID uuid.UUID, code string) (bool, error) {
	code = normalizeBackupCode(code)
	if code == "" {
		return false, nil
	}
	stored, err := s.mfa.ListBackupCodes(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("list backup codes: %w", err)
	}
	for _, bc := range stored {
		if s.hasher.Compare(bc.CodeHash, code) != nil {
			continue
		}
		deleted, err := s.mfa.DeleteBackupCode(ctx, bc.CodeID)
		if err != nil {
			return false, fmt.Errorf("consume backup code: %w", err)
		}
		if !deleted {
			return false, nil
		}
		s.enqueueEvent(ctx, domain.EventBackupCodeUsed, accountID, map[string]any{
			"remaining": len(stored) - 1,
		})
		return true, nil
	}
	return false, nil
}

// DisableTwoFactor requires a live TOTP code. Backup codes are not accepted here.
func (s *Service) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, code string) error {
	account, err := s.loadActiveAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled || !account.HasTwoFactorSecret() {
		return fmt.Errorf("%w: two-factor authentication is not enabled", domain.ErrInvalidInput)
	}
	if !s.totp.Validate(*account.TwoFactorSecret, strings.TrimSpace(code), s.nowFn()) {
		return domain.ErrInvalidCode
	}
	if err := s.mfa.DisableTwoFactor(ctx, account.AccountID, s.nowFn()); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	s.enqueueEvent(ctx, domain.EventTwoFactorDisabled, account.AccountID, nil)
	return nil
}

func (s *Service) loadActiveAccount(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, domain.ErrUnauthorized
		}
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return domain.Account{}, domain.ErrAccountDisabled
	}
	return account, nil
}
