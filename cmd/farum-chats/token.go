package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chats/internal/adapters/auth"
	"github.com/PabloGalante/farum-chats/internal/config"
	"github.com/PabloGalante/farum-chats/internal/domain"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a development bearer token with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Mode == config.ModeGCP {
			return fmt.Errorf("token issuing is disabled in gcp mode")
		}

		p, err := auth.NewJWTProvider(cfg.JWTSecret)
		if err != nil {
			return err
		}
		tok, err := p.Issue(domain.UserID(tokenUser), tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
