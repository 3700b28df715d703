package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&authOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt,
	}).Error
}

// An account is blocked while an older undelivered event for it is leased
// to another relay pass.
const heldByOlderLease = `NOT EXISTS (
	SELECT 1 FROM auth_outbox AS older
	WHERE older.partition_key = auth_outbox.partition_key
	  AND older.created_at < auth_outbox.created_at
	  AND older.published_at IS NULL
	  AND older.dead_lettered_at IS NULL
	  AND older.claim_until IS NOT NULL
	  AND older.claim_until >= ?)`

// ClaimPending leases up to claim.Limit undelivered events, ordered by
// account then age. Rows locked by a concurrent pass are skipped.
func (r *outboxRepository) ClaimPending(ctx context.Context, claim ports.OutboxClaim) ([]ports.OutboxRecord, error) {
	if claim.Limit <= 0 {
		return nil, nil
	}
	if claim.Token == "" {
		return nil, errors.New("claim token is required")
	}

	var rows []authOutboxModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidates := tx.Model(&authOutboxModel{}).
			Select("outbox_id").
			Where("published_at IS NULL AND dead_lettered_at IS NULL").
			Where("claim_until IS NULL OR claim_until < ?", claim.Now).
			Where(heldByOlderLease, claim.Now).
			Order("partition_key ASC, created_at ASC").
			Limit(claim.Limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		leased := tx.Model(&authOutboxModel{}).
			Where("outbox_id IN (?)", candidates).
			Updates(map[string]any{"claim_token": claim.Token, "claim_until": claim.Until})
		if leased.Error != nil {
			return leased.Error
		}
		if leased.RowsAffected == 0 {
			return nil
		}
		return tx.Where("claim_token = ?", claim.Token).
			Order("partition_key ASC, created_at ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]ports.OutboxRecord, len(rows))
	for i, row := range rows {
		out[i] = ports.OutboxRecord{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      []byte(row.Payload),
			RetryCount:   row.RetryCount,
			CreatedAt:    row.CreatedAt,
		}
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.settle(ctx, outboxID, claimToken, map[string]any{"published_at": at})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.settle(ctx, outboxID, claimToken, attemptFailed(errMsg, at))
}

func (r *outboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	fields := attemptFailed(errMsg, at)
	fields["dead_lettered_at"] = at
	return r.settle(ctx, outboxID, claimToken, fields)
}

func (r *outboxRepository) Release(ctx context.Context, outboxID uuid.UUID, claimToken string) error {
	return r.settle(ctx, outboxID, claimToken, map[string]any{})
}

func attemptFailed(errMsg string, at time.Time) map[string]any {
	return map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}
}

// settle applies fields and drops the lease, but only while claimToken still
// owns the row. A pass whose lease expired writes nothing.
func (r *outboxRepository) settle(ctx context.Context, outboxID uuid.UUID, claimToken string, fields map[string]any) error {
	fields["claim_token"] = nil
	fields["claim_until"] = nil
	return r.db.WithContext(ctx).
		Model(&authOutboxModel{}).
		Where("outbox_id = ? AND claim_token = ?", outboxID, claimToken).
		Updates(fields).Error
}
