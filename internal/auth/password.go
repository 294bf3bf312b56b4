package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length

	phcParts = 6
)

// HashPassword hashes a plaintext password with Argon2id.
//
// The result is a PHC string: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a plaintext password against an Argon2id PHC string.
//
// Returns:
//   - bool: true if the password matches
//   - error: ErrInvalidHash if the PHC string cannot be parsed
func VerifyPassword(password, encoded string) (bool, error) {
	p, err := parseHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(p.key, candidate) == 1, nil
}

// phcHash is a decoded Argon2id PHC string.
type phcHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

// ValidateHash reports whether encoded is a usable Argon2id PHC string.
func ValidateHash(encoded string) error {
	_, err := parseHash(encoded)
	return err
}

func parseHash(encoded string) (phcHash, error) {
	var p phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != phcParts || parts[0] != "" {
		return p, fmt.Errorf("%w: expected %d $-delimited fields", ErrInvalidHash, phcParts-1)
	}
	if parts[1] != "argon2id" {
		return p, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: parsing version: %w", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, fmt.Errorf("%w: parsing parameters: %w", ErrInvalidHash, err)
	}
	if p.time == 0 || p.memory == 0 || p.threads == 0 {
		return p, fmt.Errorf("%w: zero cost parameter", ErrInvalidHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, fmt.Errorf("%w: decoding salt: %w", ErrInvalidHash, err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, fmt.Errorf("%w: decoding hash: %w", ErrInvalidHash, err)
	}
	if len(p.key) == 0 {
		return p, fmt.Errorf("%w: empty hash", ErrInvalidHash)
	}

	return p, nil
}
