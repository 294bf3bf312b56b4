// Package auth guards the administrative endpoints of the RV-C bridge.
//
// A single administrator account is configured in config.yaml. The password
// is either stored as an Argon2id PHC string (auth.password_hash) or, for
// development setups, in plain text (auth.password). Both paths compare in
// constant time.
//
// Generate a hash with:
//
//	rvcbridge hash-password
package auth
