package security

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// ErrInsufficientEntropy is returned when the system random source fails.
var ErrInsufficientEntropy = errors.New("security: insufficient entropy")

const (
	digits       = "0123456789"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	return b, nil
}

// RandomDigits returns an n-character numeric string.
func RandomDigits(n int) (string, error) {
	return randomString(n, digits)
}

// RandomAlphanumeric returns an n-character string over [A-Za-z0-9].
func RandomAlphanumeric(n int) (string, error) {
	return randomString(n, alphanumeric)
}

func randomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out), nil
}

// SecureCompare performs a constant-time comparison of two byte slices.
// Returns true if they are equal.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
