package postgres

import (
	"gorm.io/gorm"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

type Repositories struct {
	Accounts      ports.AccountRepository
	Sessions      ports.SessionRepository
	MFA           ports.MFARepository
	LoginAttempts ports.LoginAttemptRepository
	Outbox        ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:      &accountRepository{db: db},
		Sessions:      &sessionRepository{db: db},
		MFA:           &mfaRepository{db: db},
		LoginAttempts: &loginAttemptRepository{db: db},
		Outbox:        &outboxRepository{db: db},
	}
}
