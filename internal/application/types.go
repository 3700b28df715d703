package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

// ClientSignature is the originating client metadata stored on a session.
type ClientSignature struct {
	UserAgent string
	IPAddress string
	DeviceID  *string
}

type RegisterRequest struct {
	Username string   `json:"username"`
	Email    *string  `json:"email,omitempty"`
	Password string   `json:"password"`
	FullName string   `json:"fullName,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// AccountView is the safe projection of an account. It never carries the
// password hash, the TOTP secret or backup codes.
type AccountView struct {
	ID               uuid.UUID `json:"id"`
	Username         string    `json:"username"`
	Email            *string   `json:"email,omitempty"`
	FullName         string    `json:"fullName"`
	Roles            []string  `json:"roles"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toAccountView(a domain.Account) AccountView {
	roles := make([]string, len(a.Roles))
	copy(roles, a.Roles)
	return AccountView{
		ID:               a.AccountID,
		Username:         a.Username,
		Email:            a.Email,
		FullName:         a.FullName,
		Roles:            roles,
		TwoFactorEnabled: a.TwoFactorEnabled,
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
	}
}

type LoginRequest struct {
	Username string
	Password string
	Client   ClientSignature
}

// LoginResult is either a pending second-factor challenge or a full session.
type LoginResult struct {
	Requires2FA bool
	TempToken   string
	Message     string
	Session     *SessionGrant
}

type VerifyTwoFactorRequest struct {
	TempToken string
	Code      string
	Client    ClientSignature
}

// SessionGrant is what a client receives on login, second-factor
// verification, refresh and inspector login.
type SessionGrant struct {
	IssuedAt         time.Time
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        uuid.UUID
	Account          AccountView
}

type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	QRCode     string `json:"qrCode"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type TwoFactorEnableResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backupCodes"`
}

type InspectorLoginRequest struct {
	AccessKey string
	DeviceID  string
	Client    ClientSignature
}
