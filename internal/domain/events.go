package domain

// Auth event types published on the outbox. Every event is keyed by the
// account id so a consumer sees one account's history in order.
const (
	EventAccountRegistered  = "auth.account.registered"
	EventAccountDeactivated = "auth.account.deactivated"
	EventSessionCreated     = "auth.session.created"
	EventSessionRevoked     = "auth.session.revoked"
	EventTwoFactorEnabled   = "auth.2fa.enabled"
	EventTwoFactorDisabled  = "auth.2fa.disabled"
	EventBackupCodeUsed     = "auth.2fa.backup_code_used"
)

// RevokesAccess reports whether downstream caches must drop access state when
// they see eventType. Losing one of these leaves a revoked grant trusted.
func RevokesAccess(eventType string) bool {
	switch eventType {
	case EventAccountDeactivated, EventSessionRevoked, EventTwoFactorDisabled:
		return true
	default:
		return false
	}
}
