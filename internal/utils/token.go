package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/huangang/tokengate/internal/models"
)

// GenerateTokenString returns a cryptographically random hex string of exactly
// length characters. Hex keeps the alphabet unambiguous for copy/paste and
// cookie transport. An entropy-source failure is returned as-is and should be
// treated as fatal by the caller, never retried.
func GenerateTokenString(length int) (string, error) {
	if length <= models.TokenKeyLength {
		return "", fmt.Errorf("token length %d must exceed lookup key length %d", length, models.TokenKeyLength)
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("entropy source unavailable: %w", err)
	}
	return hex.EncodeToString(buf)[:length], nil
}

// GenerateSalt returns a fresh random salt, independent per call.
func GenerateSalt() (string, error) {
	buf := make([]byte, models.SaltLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("entropy source unavailable: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken computes the hex digest of the raw token combined with the salt.
// Same inputs always produce the same digest; a different salt yields a
// different digest for the same token, so digests are never reusable across
// records and precomputed tables are useless.
func HashToken(algorithm, rawToken, salt string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write([]byte(salt))
	h.Write([]byte(rawToken))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "", "sha512":
		return sha512.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha3-512":
		return sha3.New512(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// ConstantTimeEquals compares two digests in time independent of where they
// first differ. All digest comparisons during verification must go through
// this, never ==.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
