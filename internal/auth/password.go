// Package auth holds the credential hashing primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the fixed work factor for password hashing.
	PBKDF2Iterations = 100_000
	// SaltSize is the length in bytes of generated salts.
	SaltSize = 16
	// KeySize is the derived key length (SHA-256 output size).
	KeySize = sha256.Size
)

// PasswordHash is a hex-encoded salt and derived key pair.
type PasswordHash struct {
	Salt string
	Hash string
}

// HashPassword derives a PBKDF2-HMAC-SHA256 key for password. A fresh random
// salt is generated when salt is nil.
func HashPassword(password string, salt []byte) (PasswordHash, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return PasswordHash{}, fmt.Errorf("generate salt: %w", err)
		}
	}
	key := deriveKey(password, salt, PBKDF2Iterations)
	return PasswordHash{
		Salt: hex.EncodeToString(salt),
		Hash: hex.EncodeToString(key),
	}, nil
}

// VerifyPassword recomputes the key with the stored salt and compares it with
// the stored hash in constant time. Malformed stored values never verify.
func VerifyPassword(password, saltHex, hashHex string) bool {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := hex.DecodeString(hashHex)
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := deriveKey(password, salt, PBKDF2Iterations)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// HashSecurityAnswer returns the hex SHA-256 of the lowercased, trimmed answer.
// It is unsalted and deliberately separate from password hashing.
func HashSecurityAnswer(answer string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(answer))))
	return hex.EncodeToString(sum[:])
}

// SecurityAnswerMatches compares an answer against a stored answer hash.
func SecurityAnswerMatches(answer, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	actual := HashSecurityAnswer(answer)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(storedHash)) == 1
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}
