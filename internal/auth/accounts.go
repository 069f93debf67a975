package auth

import (
	"fmt"
	"sort"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// dummyHash is verified against when the username is unknown so both
// failure paths cost one Argon2id derivation.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0c2FsdA$Q2Vqp5XHLnfXG4nYk3SJ5b4lX+V7b2J6b0J3ZWxsMDA"

type account struct {
	hash string
	role Role
}

// Accounts holds the API accounts from the security config.
type Accounts struct {
	users map[string]account
}

// NewAccounts validates and indexes the configured users.
func NewAccounts(users []config.UserConfig) (*Accounts, error) {
	a := &Accounts{users: make(map[string]account, len(users))}
	for _, u := range users {
		if !IsValidUsername(u.Username) {
			return nil, fmt.Errorf("invalid username %q", u.Username)
		}
		role := Role(u.Role)
		if !IsValidRole(role) {
			return nil, fmt.Errorf("user %s: invalid role %q", u.Username, u.Role)
		}
		if _, _, _, err := decodePHC(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		if _, dup := a.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		a.users[u.Username] = account{hash: u.PasswordHash, role: role}
	}
	return a, nil
}

// Authenticate checks a username and password.
func (a *Accounts) Authenticate(username, password string) (Principal, error) {
	acct, ok := a.users[username]
	hash := acct.hash
	if !ok {
		hash = dummyHash
	}
	match, err := VerifyPassword(password, hash)
	if err != nil || !ok || !match {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Subject: username, Role: acct.role}, nil
}

// Usernames lists the configured accounts, sorted.
func (a *Accounts) Usernames() []string {
	names := make([]string, 0, len(a.users))
	for name := range a.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
