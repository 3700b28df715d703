package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// Register creates an account and its registration event in one transaction.
// Username and email are unique case-insensitively.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (AccountView, error) {
	username := domain.NormalizeUsername(req.Username)
	if err := domain.ValidateUsername(username); err != nil {
		return AccountView{}, err
	}
	email := domain.NormalizeEmail(req.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return AccountView{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return AccountView{}, err
	}
	if username == domain.NormalizeUsername(s.cfg.InspectorUsername) {
		return AccountView{}, fmt.Errorf("%w: username or email already taken", domain.ErrConflict)
	}

	roles := normalizeRoles(req.Roles)
	if len(roles) == 0 {
		roles = []string{s.cfg.DefaultRole}
	}
	for _, role := range roles {
		if role == domain.RoleInspector {
			return AccountView{}, fmt.Errorf("%w: role %q is reserved", domain.ErrInvalidInput, role)
		}
	}

	taken, err := s.accounts.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return AccountView{}, fmt.Errorf("check account uniqueness: %w", err)
	}
	if taken {
		return AccountView{}, fmt.Errorf("%w: username or email already taken", domain.ErrConflict)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AccountView{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"username":      username,
		"roles":         roles,
		"registered_at": now,
	})
	account, err := s.accounts.CreateWithOutboxTx(ctx, ports.CreateAccountParams{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    now,
	}, ports.OutboxEvent{
		EventID:    uuid.New(),
		EventType:  domain.EventAccountRegistered,
		Payload:    payload,
		OccurredAt: now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return AccountView{}, fmt.Errorf("%w: username or email already taken", domain.ErrConflict)
		}
		return AccountView{}, fmt.Errorf("create account: %w", err)
	}

	appLogger().InfoContext(ctx, "account registered",
		"operation", "register",
		"outcome", "success",
		"account_id", account.AccountID,
	)
	return toAccountView(account), nil
}

// ValidateCredentials never tells the caller which check failed. Every
// rejected branch pays for one hash comparison.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (domain.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, domain.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.burnPasswordCompare(password)
			return domain.Account{}, domain.ErrInvalidCredentials
		}
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive || account.System {
		s.burnPasswordCompare(password)
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	return account, nil
}

// Me returns the safe projection of the authenticated account.
func (s *Service) Me(ctx context.Context, accountID uuid.UUID) (AccountView, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountView{}, domain.ErrUnauthorized
		}
		return AccountView{}, err
	}
	if !account.IsActive {
		return AccountView{}, domain.ErrAccountDisabled
	}
	return toAccountView(account), nil
}

// DeactivateAccount disables an account and revokes every live session it owns.
func (s *Service) DeactivateAccount(ctx context.Context, accountID uuid.UUID) error {
	now := s.nowFn()
	if err := s.accounts.SetActive(ctx, accountID, false, now); err != nil {
		return err
	}
	revoked, err := s.sessions.RevokeAllByAccount(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.enqueueEvent(ctx, domain.EventAccountDeactivated, accountID, map[string]any{
		"revoked_sessions": revoked,
	})
	appLogger().InfoContext(ctx, "account deactivated",
		"operation", "deactivate_account",
		"outcome", "success",
		"account_id", accountID,
		"revoked_sessions", revoked,
	)
	return nil
}

// burnPasswordCompare runs a comparison against a throwaway hash so a missing
// account costs the same as a wrong password.
func (s *Service) burnPasswordCompare(password string) {
	s.dummyHashOnce.Do(func() {
		seed, err := randomHex(16)
		if err != nil {
			return
		}
		s.dummyHash, _ = s.hasher.Hash(seed)
	})
	if s.dummyHash == "" {
		return
	}
	_ = s.hasher.Compare(s.dummyHash, password)
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
