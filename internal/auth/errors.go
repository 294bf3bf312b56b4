package auth

import "errors"

// Domain errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidHash        = errors.New("auth: invalid PHC hash")
	ErrNoCredentials      = errors.New("auth: no credentials configured")
)
