package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/irrigation-core/internal/auth"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// newTokenCmd mints an API token, for integrations that cannot log in.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is not set")
			}
			p := auth.Principal{Subject: subject, Role: auth.Role(role)}
			token, err := auth.GenerateToken(p, []byte(cfg.Security.JWT.Secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "integration", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// newHashPasswordCmd prints the Argon2id hash for a security.users entry.
// The password is read from the first line of stdin.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
