// Package cli implements realmctl, the operator tool for a realmsync server.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "realmctl",
		Short: "Operator CLI for the realmsync world server",
		Long: `realmctl talks to a running server's admin API (state, sessions, kick,
matchmaking) and manages local credentials (dev tokens, password accounts).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: REALMCTL_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")

	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newKickCmd())
	rootCmd.AddCommand(newMatchmakingCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newAccountCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
