package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"realmsync.io/internal/game"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show world counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result game.State
			if err := client.Get("/admin/v1/state", &result); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List connected sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result SessionList
			if err := client.Get("/admin/v1/sessions", &result); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newKickCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "kick <player_id>",
		Short: "Disconnect a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return fmt.Errorf("player id is required")
			}
			var body any
			if reason != "" {
				body = map[string]string{"reason": reason}
			}
			var result KickResult
			if err := client.Post("/admin/v1/sessions/"+url.PathEscape(args[0])+"/kick", body, &result); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the player")
	return cmd
}

func newMatchmakingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matchmaking",
		Short: "Show matchmaking queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MatchmakingStatus
			if err := client.Get("/admin/v1/matchmaking", &result); err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
