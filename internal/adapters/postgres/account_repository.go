package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	var result domain.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := accountModel{
			AccountID:     uuid.New(),
			Username:      params.Username,
			Email:         params.Email,
			FullName:      params.FullName,
			PasswordHash:  params.PasswordHash,
			Roles:         params.Roles,
			IsActive:      true,
			SystemAccount: params.System,
			CreatedAt:     params.CreatedAt,
			UpdatedAt:     params.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["account_id"] = rec.AccountID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := authOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: rec.AccountID.String(),
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainAccount(rec)
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).Take(&rec).Error; err != nil {
		return domain.Account{}, notFoundAsDomain(err)
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		return domain.Account{}, notFoundAsDomain(err)
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) ExistsByUsernameOrEmail(ctx context.Context, username string, email *string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&accountModel{}).Where("username = ?", username)
	if email != nil {
		query = query.Or("email = ?", *email)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *accountRepository) SetActive(ctx context.Context, accountID uuid.UUID, active bool, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
