package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes, so longer input is rejected
// instead of silently truncated.
const MaxLength = 72

var ErrTooLong = errors.New("password exceeds 72 bytes")

type Hasher struct {
	cost int
}

// New returns a bcrypt hasher. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &Hasher{cost: cost}
}

// * Hash возвращает соленый bcrypt-хэш пароля
func (h *Hasher) Hash(plain string) (string, error) {
	const op = "password.Hash"

	if len(plain) > MaxLength {
		return "", fmt.Errorf("%s: %w", op, ErrTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. Malformed hashes never match.
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
