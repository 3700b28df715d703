package ports

import (
	"time"

	"github.com/google/uuid"
)

// PasswordHasher is an adaptive one-way hash. It backs passwords, backup
// codes and refresh tokens alike.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// TokenClass tags every bearer token so one class can never verify as another.
type TokenClass string

const (
	TokenClassAccess    TokenClass = "access"
	TokenClassRefresh   TokenClass = "refresh"
	TokenClassTwoFactor TokenClass = "2fa"
)

// TokenClaims is the tagged claim set. Username and Roles are empty for
// two-factor tokens.
type TokenClaims struct {
	Class     TokenClass
	Subject   uuid.UUID
	Username  string
	Roles     []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenIssuer interface {
	Sign(class TokenClass, claims TokenClaims) (string, time.Time, error)
	Verify(class TokenClass, token string) (TokenClaims, error)
	TTL(class TokenClass) time.Duration
}

// TOTPEnrollment is the material handed to the user during setup.
type TOTPEnrollment struct {
	Secret     string
	OTPAuthURL string
	QRCode     string
}

type TOTPProvider interface {
	Enroll(accountName string) (TOTPEnrollment, error)
	Validate(secret, code string, at time.Time) bool
}
