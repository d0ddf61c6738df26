package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
)

// NumericOTP returns a uniformly random numeric code of the given length,
// left-padded with zeros. Lengths below 4 or above 10 are clamped.
func NumericOTP(digits int) (string, error) {
	if digits < 4 {
		digits = 4
	}
	if digits > 10 {
		digits = 10
	}

	bound := big.NewInt(1)
	for i := 0; i < digits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}

	code := n.String()
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}

// HashToken hashes an OTP code or token string for storage. Plaintext codes
// are never persisted.
func HashToken(value string) [32]byte {
	return sha256.Sum256([]byte(value))
}

// HashEqual compares two stored hashes in constant time.
func HashEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
