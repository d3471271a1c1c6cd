// Package auth hashes validator shared secrets and compares them in
// constant time. The plaintext token lives only on the validator host
// (VALIDATOR_AUTH_TOKEN); the broker holds only the hash.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen      = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashToken derives an Argon2id hash of token, encoded as
// "<hex salt>$<hex hash>" so it can be stored as a single string or bytes.
func HashToken(token string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("auth: generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum)
	return []byte(encoded), nil
}

// Verify reports whether token hashes to the same value as stored, using
// a constant-time comparison of the derived digest.
func Verify(stored []byte, token string) bool {
	parts := strings.SplitN(string(stored), "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// HMACPepper derives a keyed digest of token using pepper, an
// HMAC-SHA256 alternative to Argon2id for deployments that hold a
// server-side pepper. Callers comparing two HMAC digests must still use
// subtle.ConstantTimeCompare.
func HMACPepper(token string, pepper []byte) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}
