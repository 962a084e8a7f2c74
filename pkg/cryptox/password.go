package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

// ErrPasswordMismatch is returned by VerifyPassword when the digest differs.
var ErrPasswordMismatch = errors.New("password does not match")

// GenerateSalt returns a fresh random per-user salt.
func GenerateSalt() (string, error) {
	return GenerateToken(saltLength)
}

// DigestPassword derives the stored digest of password with the user's salt.
// The salt lives in its own column, so the encoded form only carries the
// parameters and the key: $argon2id$v=19$m=X,t=Y,p=Z$hash
func DigestPassword(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), iterations, memory, parallelism, keyLength)
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// VerifyPassword recomputes the digest of password with salt using the
// parameters recorded in encoded and compares it in constant time.
func VerifyPassword(password, salt, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return errors.New("invalid hash format: expected 5 parts")
	}
	if parts[1] != "argon2id" {
		return errors.New("invalid hash format: not argon2id")
	}
	if parts[2] != "v=19" {
		return errors.New("invalid hash format: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("invalid hash format: failed to parse parameters: %w", err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("invalid hash format: failed to decode hash: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(password),
		[]byte(salt),
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - bounded by the decoded hash
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

// GeneratePassword returns a random 12 character alphanumeric password.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 12
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
