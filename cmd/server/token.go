package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumire/autopost/internal/config"
	"github.com/sumire/autopost/internal/service"
)

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue an API token pair for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.RequireAuth(); err != nil {
				return err
			}
			auth := service.NewAuthService(service.AuthConfig{JWTSecret: cfg.JWTSecret, AccessTTL: ttl})
			pair, err := auth.IssueTokenPair(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pair)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "access token lifetime")
	return cmd
}
