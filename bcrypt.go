package members

import (
	"errors"
	"math/rand/v2"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TemporaryPasswordLength is the digit count of system-issued passwords.
const TemporaryPasswordLength = 8

// HashPassword will generate a password hash at the build-default cost
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, passwordHashCost())
}

// HashPasswordWithCost hashes at an explicit bcrypt cost. The cost governs
// CPU spent per verification attempt and is expected to come from
// configuration rather than a literal at the call site.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// TemporaryPassword generates an n-digit numeric password by uniform digit
// sampling. The result is single-use and expires with the guest account.
func TemporaryPassword(n int) string {
	if n <= 0 {
		n = TemporaryPasswordLength
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	return b.String()
}
