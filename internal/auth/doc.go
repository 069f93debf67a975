// Package auth provides API authentication for the irrigation controller.
//
// Callers present an HS256 JWT bearer token carrying one of three roles:
// viewer (read only), operator (zones and rain delay) and admin
// (everything, including schedules and settings). Tokens are obtained by
// logging in with a configured account, whose password is stored as an
// Argon2id PHC string, or minted offline with "irrigationd token".
//
// The role to permission mapping is static.
package auth
