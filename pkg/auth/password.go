package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Supported password hash methods
const (
	MethodBcrypt       = "bcrypt"
	MethodPBKDF2SHA256 = "pbkdf2-sha256"
)

const pbkdf2Iterations = 10000

// PasswordHasher computes and verifies salted password digests. Verify must
// treat any malformed stored triple as a mismatch rather than an error, so
// corrupted user documents can never authenticate or crash a login path.
type PasswordHasher interface {
	Hash(secret string) (method, salt, digest string, err error)
	Verify(secret, method, salt, digest string) bool
}

// DefaultHasher hashes with bcrypt and verifies bcrypt plus the legacy
// pbkdf2-sha256 triples found in older user documents.
type DefaultHasher struct {
	// Cost is the bcrypt work factor; zero means bcrypt.DefaultCost.
	Cost int
}

// Hash computes a fresh digest for secret
func (h DefaultHasher) Hash(secret string) (string, string, string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	// bcrypt embeds its own salt in the digest
	return MethodBcrypt, "", string(digest), nil
}

// Verify checks secret against a stored {method, salt, digest} triple
func (h DefaultHasher) Verify(secret, method, salt, digest string) bool {
	switch method {
	case MethodBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
	case MethodPBKDF2SHA256:
		return verifyPBKDF2(secret, salt, digest)
	default:
		return false
	}
}

// PBKDF2Hasher produces pbkdf2-sha256 triples with a random hex salt.
// Kept for installations that cannot use bcrypt digests.
type PBKDF2Hasher struct{}

// Hash computes a fresh digest for secret
func (PBKDF2Hasher) Hash(secret string) (string, string, string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	digest := pbkdf2.Key([]byte(secret), []byte(salt), pbkdf2Iterations, sha256.Size, sha256.New)
	return MethodPBKDF2SHA256, salt, hex.EncodeToString(digest), nil
}

// Verify checks secret against a stored {method, salt, digest} triple
func (PBKDF2Hasher) Verify(secret, method, salt, digest string) bool {
	if method != MethodPBKDF2SHA256 {
		return false
	}
	return verifyPBKDF2(secret, salt, digest)
}

func verifyPBKDF2(secret, salt, digest string) bool {
	stored, err := hex.DecodeString(digest)
	if err != nil || len(stored) != sha256.Size {
		return false
	}
	computed := pbkdf2.Key([]byte(secret), []byte(salt), pbkdf2Iterations, sha256.Size, sha256.New)
	return subtle.ConstantTimeCompare(stored, computed) == 1
}
