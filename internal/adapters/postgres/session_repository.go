package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	rec := sessionModel{
		SessionID:        uuid.New(),
		AccountID:        params.AccountID,
		RefreshTokenHash: params.RefreshTokenHash,
		UserAgent:        params.UserAgent,
		IPAddress:        nullableString(params.IPAddress),
		DeviceID:         params.DeviceID,
		ExpiresAt:        params.ExpiresAt,
		CreatedAt:        params.CreatedAt,
		UpdatedAt:        params.CreatedAt,
		Version:          1,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) ListUnrevoked(ctx context.Context, filter ports.SessionFilter) ([]domain.Session, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ?", filter.AccountID).
		Where("revoked = ?", false)
	if filter.ActiveAt != nil {
		query = query.Where("expires_at > ?", *filter.ActiveAt)
	}

	var rows []sessionModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSession(row))
	}
	return result, nil
}

// Rotate rewrites the session in place. The version guard turns a second
// concurrent rotation of the same lineage into ErrConflict.
func (r *sessionRepository) Rotate(ctx context.Context, params ports.SessionRotateParams) (domain.Session, error) {
	var rec sessionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sessionModel{}).
			Where("session_id = ?", params.SessionID).
			Where("version = ?", params.ExpectedVersion).
			Where("revoked = ?", false).
			Updates(map[string]any{
				"refresh_token_hash": params.RefreshTokenHash,
				"expires_at":         params.ExpiresAt,
				"last_rotated_at":    params.RotatedAt,
				"user_agent":         params.UserAgent,
				"ip_address":         nullableString(params.IPAddress),
				"updated_at":         params.RotatedAt,
				"version":            gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConflict
		}
		return tx.Where("session_id = ?", params.SessionID).Take(&rec).Error
	})
	if err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) Revoke(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Where("revoked = ?", false).
		Updates(map[string]any{
			"revoked":    true,
			"updated_at": at,
			"version":    gorm.Expr("version + 1"),
		}).Error
}

func (r *sessionRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("account_id = ?", accountID).
		Where("revoked = ?", false).
		Updates(map[string]any{
			"revoked":    true,
			"updated_at": at,
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// DeleteReapable hard-deletes expired, long-revoked and idle sessions in one statement.
func (r *sessionRepository) DeleteReapable(ctx context.Context, policy domain.ReapPolicy) (int64, error) {
	idleBefore := policy.IdleBefore()
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", policy.Now).
		Or("revoked = ? AND updated_at < ?", true, policy.RevokedBefore()).
		Or("revoked = ? AND last_rotated_at IS NULL AND created_at < ?", false, idleBefore).
		Or("revoked = ? AND last_rotated_at IS NOT NULL AND last_rotated_at < ?", false, idleBefore).
		Delete(&sessionModel{})
	return res.RowsAffected, res.Error
}
