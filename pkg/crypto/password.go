package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// ValidatePassword enforces the minimum password policy: at least eight
// characters including an uppercase letter, a lowercase letter and a digit.
func ValidatePassword(plain string) error {
	if len(plain) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if !strings.ContainsFunc(plain, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !strings.ContainsFunc(plain, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !strings.ContainsFunc(plain, func(r rune) bool { return r >= '0' && r <= '9' }) {
		return errors.New("password must contain at least one number")
	}
	return nil
}

// HashToken digests a one-time secret for at-rest storage. Tokens are
// high-entropy random strings, so a plain SHA-256 digest is sufficient.
func HashToken(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// CompareToken checks a presented secret against its stored digest in
// constant time.
func CompareToken(hash []byte, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(hash, sum[:]) == 1
}
