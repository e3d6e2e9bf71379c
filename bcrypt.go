package auth

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used when none is configured
const DefaultPasswordCost = 12

// BcryptHasher implements PasswordHasher with a tunable work factor.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher. Out of range costs fall back to
// DefaultPasswordCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &BcryptHasher{cost: cost}
}

// HashPassword will generate a salted password hash
func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether password matches hash. bcrypt compares in
// constant time; a malformed hash is a mismatch.
func (h *BcryptHasher) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Cost returns the configured work factor
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// HashPassword hashes with the default cost
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(DefaultPasswordCost).HashPassword(password)
}

// ComparePasswordAndHash reports whether the cleartext password matches hash
func ComparePasswordAndHash(password, hash string) bool {
	return NewBcryptHasher(DefaultPasswordCost).VerifyPassword(password, hash)
}

// RandomPasswordHash is a digest nobody knows the password for. Login
// verifies against it when the identity is unknown so both paths cost the
// same.
func RandomPasswordHash(h PasswordHasher) string {
	digest, err := h.HashPassword(uuid.NewString())
	if err != nil {
		return ""
	}
	return digest
}
