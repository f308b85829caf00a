package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chats/internal/app/chats"
	"github.com/PabloGalante/farum-chats/internal/config"
	"github.com/PabloGalante/farum-chats/internal/domain"
	"github.com/PabloGalante/farum-chats/internal/observability"
)

var (
	recentUser    string
	recentPersona string
	recentLimit   int
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print a user's most recent sessions from the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Keep stdout for the table.
		observability.Configure(os.Stderr, cfg.LogLevel)

		store, personas, err := openStores(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		in := chats.RecentSessionsInput{
			User:  domain.UserID(recentUser),
			Limit: recentLimit,
		}
		if recentPersona != "" {
			in.Persona = domain.Ptr(domain.PersonaID(recentPersona))
		}

		summaries, err := chats.NewService(store, personas).GetRecentSessions(cmd.Context(), in)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tPERSONA\tUPDATED\tLAST MESSAGE")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				s.SessionID, s.PersonaName, s.UpdatedAt.Format(time.RFC3339), truncate(s.LastMessage, 40))
		}
		return tw.Flush()
	},
}

func init() {
	recentCmd.Flags().StringVar(&recentUser, "user", "", "user id (required)")
	recentCmd.Flags().StringVar(&recentPersona, "persona", "", "only sessions with this persona")
	recentCmd.Flags().IntVar(&recentLimit, "limit", chats.DefaultRecentLimit, "maximum sessions to show")
	_ = recentCmd.MarkFlagRequired("user")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
