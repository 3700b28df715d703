package application

import (
	"context"
	"fmt"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

// ReapSessions deletes expired, long-revoked and idle sessions in one pass.
func (s *Service) ReapSessions(ctx context.Context) (int64, error) {
	policy := domain.ReapPolicy{
		Now:              s.nowFn(),
		RevokedRetention: s.cfg.RevokedRetention,
		IdleRetention:    s.cfg.IdleRetention,
	}
	deleted, err := s.sessions.DeleteReapable(ctx, policy)
	if err != nil {
		appLogger().ErrorContext(ctx, "session cleanup failed",
			"operation", "reap_sessions",
			"outcome", "failure",
			"error", err,
		)
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	appLogger().InfoContext(ctx, "session cleanup completed",
		"operation", "reap_sessions",
		"outcome", "success",
		"deleted", deleted,
	)
	return deleted, nil
}
