package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// TokenClassConfig is the signing secret and lifetime of one token class.
type TokenClassConfig struct {
	Secret string
	TTL    time.Duration
}

// HMACTokenIssuer signs HS256 tokens with a distinct secret per class and
// stamps every token with its class so verification is class-bound even if
// two secrets were configured identically.
type HMACTokenIssuer struct {
	issuer  string
	classes map[ports.TokenClass]TokenClassConfig
	now     func() time.Time
}

var requiredClasses = []ports.TokenClass{
	ports.TokenClassAccess,
	ports.TokenClassRefresh,
	ports.TokenClassTwoFactor,
}

// NewHMACTokenIssuer builds an issuer. Every class must have a secret and a positive TTL.
func NewHMACTokenIssuer(issuer string, classes map[ports.TokenClass]TokenClassConfig, now func() time.Time) (*HMACTokenIssuer, error) {
	for _, class := range requiredClasses {
		cfg, ok := classes[class]
		if !ok || cfg.Secret == "" {
			return nil, fmt.Errorf("missing signing secret for %s tokens", class)
		}
		if cfg.TTL <= 0 {
			return nil, fmt.Errorf("ttl for %s tokens must be positive", class)
		}
	}
	if now == nil {
		now = time.Now
	}
	copied := make(map[ports.TokenClass]TokenClassConfig, len(classes))
	for k, v := range classes {
		copied[k] = v
	}
	return &HMACTokenIssuer{issuer: issuer, classes: copied, now: now}, nil
}

// NewEphemeralTokenIssuer creates random per-process secrets for local runs.
// Tokens do not survive a restart.
func NewEphemeralTokenIssuer(issuer string, ttls map[ports.TokenClass]time.Duration, now func() time.Time) (*HMACTokenIssuer, error) {
	classes := make(map[ports.TokenClass]TokenClassConfig, len(requiredClasses))
	for _, class := range requiredClasses {
		secret, err := randomSecret(32)
		if err != nil {
			return nil, err
		}
		classes[class] = TokenClassConfig{Secret: secret, TTL: ttls[class]}
	}
	return NewHMACTokenIssuer(issuer, classes, now)
}

type classClaims struct {
	Class    string   `json:"cls"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (s *HMACTokenIssuer) TTL(class ports.TokenClass) time.Duration {
	return s.classes[class].TTL
}

func (s *HMACTokenIssuer) Sign(class ports.TokenClass, claims ports.TokenClaims) (string, time.Time, error) {
	cfg, ok := s.classes[class]
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown token class %q", class)
	}
	if claims.Subject == uuid.Nil {
		return "", time.Time{}, errors.New("token subject is required")
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now().UTC()
	}
	expiresAt := issuedAt.Add(cfg.TTL)
	tokenID := claims.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	payload := classClaims{
		Class: string(class),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.Subject.String(),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if class != ports.TokenClassTwoFactor {
		payload.Username = claims.Username
		payload.Roles = claims.Roles
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *HMACTokenIssuer) Verify(class ports.TokenClass, raw string) (ports.TokenClaims, error) {
	cfg, ok := s.classes[class]
	if !ok {
		return ports.TokenClaims{}, fmt.Errorf("%w: unknown token class %q", domain.ErrInvalidToken, class)
	}
	parsed, err := jwt.ParseWithClaims(raw, &classClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*classClaims)
	if !ok || !parsed.Valid {
		return ports.TokenClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrInvalidToken)
	}
	if claims.Class != string(class) {
		return ports.TokenClaims{}, fmt.Errorf("%w: expected %s token, got %q", domain.ErrInvalidToken, class, claims.Class)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: parse subject: %v", domain.ErrInvalidToken, err)
	}
	result := ports.TokenClaims{
		Class:    class,
		Subject:  subject,
		Username: claims.Username,
		Roles:    claims.Roles,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return result, nil
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
