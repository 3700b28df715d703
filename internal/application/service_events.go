package application

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// enqueueEvent writes a best-effort outbox record. Failures are logged and
// never fail the calling operation.
func (s *Service) enqueueEvent(ctx context.Context, eventType string, accountID uuid.UUID, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	now := s.nowFn()
	payload["account_id"] = accountID.String()
	payload["occurred_at"] = now
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: accountID.String(),
		Payload:      raw,
		OccurredAt:   now,
	}); err != nil {
		appLogger().WarnContext(ctx, "failed to enqueue outbox event",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
	}
}
