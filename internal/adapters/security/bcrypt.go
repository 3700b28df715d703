package security

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements password hashing via bcrypt.
// Cost is configurable so security/performance can be tuned by environment.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt-based hasher with default fallback cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// TokenHasher bcrypts the SHA-256 digest of a bearer token. bcrypt reads at
// most 72 bytes, which is shorter than a signed JWT, so hashing the raw token
// would let tokens with a shared prefix collide.
type TokenHasher struct {
	inner *BcryptHasher
}

// NewTokenHasher creates a digest-then-bcrypt hasher for refresh tokens.
func NewTokenHasher(cost int) *TokenHasher {
	return &TokenHasher{inner: NewBcryptHasher(cost)}
}

func (h *TokenHasher) Hash(token string) (string, error) {
	return h.inner.Hash(digest(token))
}

func (h *TokenHasher) Compare(hash, token string) error {
	return h.inner.Compare(hash, digest(token))
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
