package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is one refresh-token lineage. Refresh rewrites the same record, so
// an account holds one row per login rather than one per issued token.
type Session struct {
	SessionID        uuid.UUID
	AccountID        uuid.UUID
	RefreshTokenHash string
	UserAgent        string
	IPAddress        string
	DeviceID         *string
	ExpiresAt        time.Time
	Revoked          bool
	LastRotatedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// Active reports whether the session can still back a refresh at now.
func (s Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// ReapPolicy holds the retention windows used by the session reaper.
type ReapPolicy struct {
	Now              time.Time
	RevokedRetention time.Duration
	IdleRetention    time.Duration
}

// RevokedBefore is the cutoff for revoked sessions.
func (p ReapPolicy) RevokedBefore() time.Time { return p.Now.Add(-p.RevokedRetention) }

// IdleBefore is the cutoff for sessions that stopped refreshing.
func (p ReapPolicy) IdleBefore() time.Time { return p.Now.Add(-p.IdleRetention) }

// Reapable mirrors the reaper's delete predicate for a single record.
func (s Session) Reapable(p ReapPolicy) bool {
	if s.ExpiresAt.Before(p.Now) {
		return true
	}
	if s.Revoked {
		return s.UpdatedAt.Before(p.RevokedBefore())
	}
	if s.LastRotatedAt == nil {
		return s.CreatedAt.Before(p.IdleBefore())
	}
	return s.LastRotatedAt.Before(p.IdleBefore())
}
