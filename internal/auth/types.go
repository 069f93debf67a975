package auth

import (
	"errors"
	"regexp"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks the 1-64 character alphanumeric/._- format.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an authorisation tier of the controller API.
type Role string

const (
	// RoleViewer may read status, schedules and the event log.
	RoleViewer Role = "viewer"

	// RoleOperator may also start and stop zones and set rain delays.
	RoleOperator Role = "operator"

	// RoleAdmin may also edit schedules and runtime settings, and trigger
	// schedule server syncs.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role, lowest first.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrInvalidHash        = errors.New("invalid password hash")
)
