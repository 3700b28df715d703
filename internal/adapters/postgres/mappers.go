package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

func toDomainAccount(row accountModel) domain.Account {
	roles := make([]string, len(row.Roles))
	copy(roles, row.Roles)
	return domain.Account{
		AccountID:        row.AccountID,
		Username:         row.Username,
		Email:            row.Email,
		FullName:         row.FullName,
		PasswordHash:     row.PasswordHash,
		Roles:            roles,
		TwoFactorEnabled: row.TwoFactorEnabled,
		TwoFactorSecret:  row.TwoFactorSecret,
		IsActive:         row.IsActive,
		System:           row.SystemAccount,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Session{
		SessionID:        row.SessionID,
		AccountID:        row.AccountID,
		RefreshTokenHash: row.RefreshTokenHash,
		UserAgent:        row.UserAgent,
		IPAddress:        ip,
		DeviceID:         row.DeviceID,
		ExpiresAt:        row.ExpiresAt,
		Revoked:          row.Revoked,
		LastRotatedAt:    row.LastRotatedAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		Version:          row.Version,
	}
}

func toDomainBackupCode(row backupCodeModel) domain.BackupCode {
	return domain.BackupCode{
		CodeID:    row.CodeID,
		AccountID: row.AccountID,
		CodeHash:  row.CodeHash,
		CreatedAt: row.CreatedAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFoundAsDomain(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
