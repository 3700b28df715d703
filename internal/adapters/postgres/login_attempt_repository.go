package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

type loginAttemptRepository struct {
	db *gorm.DB
}

func (r *loginAttemptRepository) Insert(ctx context.Context, attempt domain.LoginAttempt) error {
	rec := loginAttemptModel{
		AccountID:     attempt.AccountID,
		Username:      attempt.Username,
		AttemptAt:     attempt.AttemptAt,
		IPAddress:     nullableString(attempt.IPAddress),
		UserAgent:     attempt.UserAgent,
		Status:        attempt.Status,
		FailureReason: attempt.FailureReason,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}
