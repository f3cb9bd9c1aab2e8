// internal/membership/password.go
package membership

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	hashScheme = "argon2id"
	saltLen    = 16
	keyLen     = 32
)

var errMalformedHash = errors.New("malformed password hash")

// HashPassword returns a salted Argon2id hash encoded as
// argon2id$<salt>$<hash> so it fits a single column.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, keyLen)

	return strings.Join([]string{
		hashScheme,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	}, "$"), nil
}

// VerifyPassword compares a password with an encoded hash.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashScheme {
		return false, errMalformedHash
	}

	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	hash, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}
	if len(salt) == 0 || len(hash) != keyLen {
		return false, errMalformedHash
	}

	comparisonHash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, keyLen)

	return subtle.ConstantTimeCompare(hash, comparisonHash) == 1, nil
}
