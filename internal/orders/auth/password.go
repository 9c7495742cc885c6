// Package auth holds the credential primitives of the order desk: bcrypt
// password hashing, the actor carried in a context, and signed session
// tokens.
package auth

import (
	"errors"
	"fmt"

	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used when none is configured.
const DefaultCost = bcrypt.DefaultCost

// HashPassword returns the salted bcrypt hash of password. A cost of zero
// selects DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", e.Invalid("password", "longer than 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsHash reports whether stored looks like a bcrypt hash rather than a
// plaintext credential.
func IsHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than the
// one now configured.
func NeedsRehash(hash string, cost int) bool {
	if cost == 0 {
		cost = DefaultCost
	}
	current, err := bcrypt.Cost([]byte(hash))
	return err != nil || current < cost
}
