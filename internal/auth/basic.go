package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// Verifier checks HTTP Basic credentials against the configured account.
//
// Thread Safety: Verifier is immutable after construction.
type Verifier struct {
	username     string
	password     string
	passwordHash string
	realm        string
}

// DefaultRealm is used when auth.realm is empty.
const DefaultRealm = "RV-C MQTT Control Application"

// NewVerifier creates a Verifier from the auth configuration.
//
// Returns:
//   - *Verifier: Ready to check credentials
//   - error: ErrNoCredentials if no username or secret is configured,
//     ErrInvalidHash if auth.password_hash is malformed
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if cfg.Username == "" || (cfg.Password == "" && cfg.PasswordHash == "") {
		return nil, ErrNoCredentials
	}
	if cfg.PasswordHash != "" {
		if err := ValidateHash(cfg.PasswordHash); err != nil {
			return nil, err
		}
	}

	realm := cfg.Realm
	if realm == "" {
		realm = DefaultRealm
	}

	return &Verifier{
		username:     cfg.Username,
		password:     cfg.Password,
		passwordHash: cfg.PasswordHash,
		realm:        realm,
	}, nil
}

// Realm returns the WWW-Authenticate realm.
func (v *Verifier) Realm() string {
	return v.realm
}

// Check reports whether the username and password match.
//
// Both fields are always compared so timing does not reveal which one was wrong.
func (v *Verifier) Check(username, password string) error {
	userOK := equalConstantTime(username, v.username)

	var passOK bool
	if v.passwordHash != "" {
		ok, err := VerifyPassword(password, v.passwordHash)
		passOK = err == nil && ok
	} else {
		passOK = equalConstantTime(password, v.password)
	}

	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// equalConstantTime compares digests so inputs of different lengths take
// the same time.
func equalConstantTime(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
