package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimendoza/B2023-R3X-07/internal/middleware"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the allocation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case middleware.RoleAdmin, middleware.RoleScheduler, middleware.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := middleware.NewTokenAuthority(root.cfg.JWT.Secret).Issue(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator the token identifies")
	cmd.Flags().StringVar(&role, "role", middleware.RoleScheduler, "admin, scheduler or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
