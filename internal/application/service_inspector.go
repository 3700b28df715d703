package application

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// LoginInspector exchanges the shared inspector key for a session on the
// system inspector account, provisioning that account on first use.
func (s *Service) LoginInspector(ctx context.Context, req InspectorLoginRequest) (SessionGrant, error) {
	expected := s.cfg.InspectorAccessKey
	if expected == "" || subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(expected)) != 1 {
		appLogger().WarnContext(ctx, "inspector key rejected",
			"operation", "login_inspector",
			"outcome", "rejected",
			"ip_address", req.Client.IPAddress,
		)
		return SessionGrant{}, fmt.Errorf("%w: invalid inspector access key", domain.ErrUnauthorized)
	}

	account, err := s.inspectorAccount(ctx)
	if err != nil {
		return SessionGrant{}, err
	}
	if !account.IsActive {
		return SessionGrant{}, fmt.Errorf("%w: inspector account disabled", domain.ErrForbidden)
	}

	client := req.Client
	if deviceID := strings.TrimSpace(req.DeviceID); deviceID != "" {
		client.DeviceID = &deviceID
	}
	grant, err := s.issueSession(ctx, account, client)
	if err != nil {
		return SessionGrant{}, err
	}
	s.recordAttempt(ctx, &account.AccountID, account.Username, client, domain.LoginStatusSuccess, "")
	return grant, nil
}

// inspectorAccount resolves the provisioned system account. An account under
// the inspector username that the service did not create is never used.
func (s *Service) inspectorAccount(ctx context.Context) (domain.Account, error) {
	username := domain.NormalizeUsername(s.cfg.InspectorUsername)
	account, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		return s.requireSystemInspector(ctx, account)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("load inspector account: %w", err)
	}

	password, err := randomHex(32)
	if err != nil {
		return domain.Account{}, fmt.Errorf("generate inspector password: %w", err)
	}
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash inspector password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"username":      username,
		"roles":         []string{domain.RoleInspector},
		"registered_at": now,
		"provisioned":   true,
	})
	account, err = s.accounts.CreateWithOutboxTx(ctx, ports.CreateAccountParams{
		Username:     username,
		FullName:     "Inspector",
		PasswordHash: passwordHash,
		Roles:        []string{domain.RoleInspector},
		System:       true,
		CreatedAt:    now,
	}, ports.OutboxEvent{
		EventID:    uuid.New(),
		EventType:  domain.EventAccountRegistered,
		Payload:    payload,
		OccurredAt: now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a provisioning race; the winner's row is authoritative.
			winner, getErr := s.accounts.GetByUsername(ctx, username)
			if getErr != nil {
				return domain.Account{}, fmt.Errorf("load inspector account: %w", getErr)
			}
			return s.requireSystemInspector(ctx, winner)
		}
		return domain.Account{}, fmt.Errorf("provision inspector account: %w", err)
	}

	appLogger().InfoContext(ctx, "inspector account provisioned",
		"operation", "login_inspector",
		"outcome", "provisioned",
		"account_id", account.AccountID,
	)
	return account, nil
}

func (s *Service) requireSystemInspector(ctx context.Context, account domain.Account) (domain.Account, error) {
	if account.System && len(account.Roles) == 1 && account.Roles[0] == domain.RoleInspector {
		return account, nil
	}
	appLogger().ErrorContext(ctx, "inspector username held by a non-system account",
		"operation", "login_inspector",
		"outcome", "rejected",
		"error_code", "INSPECTOR_ACCOUNT_MISMATCH",
		"account_id", account.AccountID,
	)
	return domain.Account{}, fmt.Errorf("%w: inspector account is not a system account", domain.ErrForbidden)
}
