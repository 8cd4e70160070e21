package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/trip-budget-planner/backend/internal/auth"
)

func tokenCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint an access token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return errors.New("--user is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
			token, expiresAt, err := manager.NewAccessToken(strings.TrimSpace(user))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "owner id placed in the token subject")
	return cmd
}
