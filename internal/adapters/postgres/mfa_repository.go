package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

type mfaRepository struct {
	db *gorm.DB
}

func (r *mfaRepository) SaveTOTPSecret(ctx context.Context, accountID uuid.UUID, secret string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Where("two_factor_enabled = ?", false).
		Updates(map[string]any{
			"two_factor_secret": secret,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// EnableTwoFactor flips the flag and replaces the backup codes atomically.
func (r *mfaRepository) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, backupCodeHashes []string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Where("two_factor_enabled = ?", false).
			Where("two_factor_secret IS NOT NULL").
			Updates(map[string]any{
				"two_factor_enabled": true,
				"updated_at":         at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConflict
		}
		return replaceBackupCodes(tx, accountID, backupCodeHashes, at)
	})
}

func (r *mfaRepository) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Updates(map[string]any{
				"two_factor_enabled": false,
				"two_factor_secret":  nil,
				"updated_at":         at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Where("account_id = ?", accountID).Delete(&backupCodeModel{}).Error
	})
}

func (r *mfaRepository) ListBackupCodes(ctx context.Context, accountID uuid.UUID) ([]domain.BackupCode, error) {
	var rows []backupCodeModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.BackupCode, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainBackupCode(row))
	}
	return result, nil
}

func (r *mfaRepository) DeleteBackupCode(ctx context.Context, codeID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("code_id = ?", codeID).
		Delete(&backupCodeModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func replaceBackupCodes(tx *gorm.DB, accountID uuid.UUID, codeHashes []string, createdAt time.Time) error {
	if err := tx.Where("account_id = ?", accountID).Delete(&backupCodeModel{}).Error; err != nil {
		return err
	}
	if len(codeHashes) == 0 {
		return nil
	}
	records := make([]backupCodeModel, 0, len(codeHashes))
	for _, hash := range codeHashes {
		records = append(records, backupCodeModel{
			CodeID:    uuid.New(),
			AccountID: accountID,
			CodeHash:  hash,
			CreatedAt: createdAt,
		})
	}
	return tx.Create(&records).Error
}
