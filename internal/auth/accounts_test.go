package auth

import (
	"errors"
	"testing"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

func testAccounts(t *testing.T) *Accounts {
	t.Helper()
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	a, err := NewAccounts([]config.UserConfig{
		{Username: "gardener", PasswordHash: hash, Role: "operator"},
		{Username: "owner.admin", PasswordHash: hash, Role: "admin"},
	})
	if err != nil {
		t.Fatalf("NewAccounts() error = %v", err)
	}
	return a
}

func TestAccounts_Authenticate(t *testing.T) {
	a := testAccounts(t)

	p, err := a.Authenticate("gardener", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if p.Subject != "gardener" || p.Role != RoleOperator {
		t.Errorf("Authenticate() = %+v", p)
	}

	if _, err := a.Authenticate("gardener", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := a.Authenticate("stranger", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}

	names := a.Usernames()
	if len(names) != 2 || names[0] != "gardener" || names[1] != "owner.admin" {
		t.Errorf("Usernames() = %v", names)
	}
}

func TestNewAccounts_Invalid(t *testing.T) {
	const hash = dummyHash
	tests := []struct {
		name  string
		users []config.UserConfig
	}{
		{"bad username", []config.UserConfig{{Username: "has space", PasswordHash: hash, Role: "admin"}}},
		{"bad role", []config.UserConfig{{Username: "a", PasswordHash: hash, Role: "owner"}}},
		{"bad hash", []config.UserConfig{{Username: "a", PasswordHash: "plaintext", Role: "admin"}}},
		{"duplicate", []config.UserConfig{
			{Username: "a", PasswordHash: hash, Role: "admin"},
			{Username: "a", PasswordHash: hash, Role: "viewer"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAccounts(tt.users); err == nil {
				t.Error("NewAccounts() should fail")
			}
		})
	}

	empty, err := NewAccounts(nil)
	if err != nil || len(empty.Usernames()) != 0 {
		t.Errorf("NewAccounts(nil) = %v, %v", empty, err)
	}
}
