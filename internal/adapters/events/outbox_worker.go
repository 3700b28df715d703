package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// OutboxWorker relays auth events from the outbox to the broker. Events for
// one account leave in the order they were written: when delivery fails, the
// account's later events in the batch are released and wait for the retry.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	now        func() time.Time
}

type relayOutcome int

const (
	relayPublished relayOutcome = iota
	relayRetry
	relayDeadLettered
)

// relayStats summarizes one pass.
type relayStats struct {
	claimed, published, retrying, deadLettered, deferred int
}

// NewOutboxWorker builds the relay. Zero values fall back to 2s polling,
// batches of 100, a 30s lease and 5 attempts.
func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	w := &OutboxWorker{
		logger:     logger.With("module", "events.outbox", "layer", "adapter"),
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if w.interval <= 0 {
		w.interval = 2 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 100
	}
	if w.claimTTL <= 0 {
		w.claimTTL = 30 * time.Second
	}
	if w.maxRetries <= 0 {
		w.maxRetries = 5
	}
	return w
}

// Run relays until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.relayOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox relay pass failed",
				"operation", "relay_outbox",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *OutboxWorker) relayOnce(ctx context.Context) (relayStats, error) {
	claim := ports.OutboxClaim{Token: uuid.NewString(), Limit: w.batchSize, Now: w.now()}
	claim.Until = claim.Now.Add(w.claimTTL)

	records, err := w.outbox.ClaimPending(ctx, claim)
	if err != nil {
		return relayStats{}, err
	}

	stats := relayStats{claimed: len(records)}
	stalled := make(map[string]bool)
	for _, rec := range records {
		if stalled[rec.PartitionKey] {
			stats.deferred++
			w.settle(ctx, rec, "release", w.outbox.Release(ctx, rec.OutboxID, claim.Token))
			continue
		}
		switch w.deliver(ctx, rec, claim.Token) {
		case relayPublished:
			stats.published++
		case relayRetry:
			stats.retrying++
			stalled[rec.PartitionKey] = true
		case relayDeadLettered:
			stats.deadLettered++
		}
	}

	if stats.claimed > 0 {
		w.logger.InfoContext(ctx, "outbox relay pass completed",
			"operation", "relay_outbox",
			"outcome", "success",
			"claimed_count", stats.claimed,
			"published_count", stats.published,
			"retrying_count", stats.retrying,
			"dead_lettered_count", stats.deadLettered,
			"deferred_count", stats.deferred,
		)
	}
	return stats, nil
}

func (w *OutboxWorker) deliver(ctx context.Context, rec ports.OutboxRecord, token string) relayOutcome {
	if rec.RetryCount >= w.maxRetries {
		w.deadLetter(ctx, rec, token, rec.RetryCount, "attempt limit reached before publish", nil)
		return relayDeadLettered
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload)
	if err == nil {
		w.settle(ctx, rec, "mark_published", w.outbox.MarkPublished(ctx, rec.OutboxID, token, w.now()))
		return relayPublished
	}

	attempts := rec.RetryCount + 1
	if attempts >= w.maxRetries {
		w.deadLetter(ctx, rec, token, attempts, err.Error(), err)
		return relayDeadLettered
	}

	w.logger.WarnContext(ctx, "auth event delivery failed; will retry",
		"operation", "publish_event",
		"outcome", "retry",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"account_id", rec.PartitionKey,
		"attempts", attempts,
		"error", err,
	)
	w.settle(ctx, rec, "mark_failed", w.outbox.MarkFailed(ctx, rec.OutboxID, token, err.Error(), w.now()))
	return relayRetry
}

// deadLetter parks rec. Revocation events get their own error code so an
// operator can replay them before downstream caches trust a dead grant.
func (w *OutboxWorker) deadLetter(ctx context.Context, rec ports.OutboxRecord, token string, attempts int, reason string, cause error) {
	code := "AUTH_EVENT_DEAD_LETTERED"
	if domain.RevokesAccess(rec.EventType) {
		code = "REVOCATION_EVENT_DEAD_LETTERED"
	}
	w.logger.ErrorContext(ctx, "auth event moved to dead letter",
		"operation", "publish_event",
		"outcome", "dead_lettered",
		"error_code", code,
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"account_id", rec.PartitionKey,
		"attempts", attempts,
		"enqueued_at", rec.CreatedAt,
		"error", cause,
	)
	w.settle(ctx, rec, "mark_dead_lettered", w.outbox.MarkDeadLettered(ctx, rec.OutboxID, token, reason, w.now()))
}

func (w *OutboxWorker) settle(ctx context.Context, rec ports.OutboxRecord, operation string, err error) {
	if err == nil {
		return
	}
	w.logger.WarnContext(ctx, "outbox state update failed; lease will expire",
		"operation", operation,
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"error", err,
	)
}
