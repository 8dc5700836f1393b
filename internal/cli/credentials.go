package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"realmsync.io/internal/auth"
	"realmsync.io/internal/model"
	"realmsync.io/internal/store/backend"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Dev token commands",
	}
	cmd.AddCommand(newTokenMintCmd())
	return cmd
}

func newTokenMintCmd() *cobra.Command {
	var playerID, username string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed token using REALM_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := auth.ValidateUsername(username)
			if err != nil {
				return err
			}
			ac, err := auth.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			if !ac.TokenEnabled() {
				return fmt.Errorf("REALM_JWT_SECRET is not set")
			}
			if playerID == "" {
				playerID = uuid.NewString()
			}
			if ttl <= 0 {
				ttl = ac.TokenTTL
			}
			tok, err := auth.Mint(ac.Token, model.Identity{PlayerID: playerID, Username: name}, ttl)
			if err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(TokenResult{
				PlayerID:  playerID,
				Username:  name,
				ExpiresAt: time.Now().UTC().Add(ttl).Truncate(time.Second),
				Token:     tok,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&playerID, "player-id", "", "Player id (default: random uuid)")
	cmd.Flags().StringVar(&username, "username", "", "Username carried in the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: REALM_JWT_TTL)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Local password account commands",
	}
	cmd.AddCommand(newAccountCreateCmd())
	return cmd
}

func newAccountCreateCmd() *cobra.Command {
	var (
		username, password string
		sc                 backend.Config
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a username/password account directly in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("REALMCTL_PASSWORD")
			}
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password (or REALMCTL_PASSWORD) are required")
			}
			if sc.Backend == "" || sc.Backend == "memory" {
				return fmt.Errorf("--store must be redis or sqlite; memory accounts die with the process")
			}
			st, err := backend.Open(sc)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			acc, err := auth.Register(cmd.Context(), st, username, password)
			if err != nil {
				return err
			}
			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(AccountResult{PlayerID: acc.PlayerID, Username: acc.Username})
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (env: REALMCTL_PASSWORD)")
	cmd.Flags().StringVar(&sc.Backend, "store", getEnvOrDefault("REALM_STORE", "sqlite"), "Store backend: redis or sqlite (env: REALM_STORE)")
	cmd.Flags().StringVar(&sc.RedisURL, "redis-url", os.Getenv("REALM_REDIS_URL"), "Redis url (env: REALM_REDIS_URL)")
	cmd.Flags().StringVar(&sc.RedisKeyPrefix, "redis-prefix", os.Getenv("REALM_REDIS_PREFIX"), "Redis key prefix (env: REALM_REDIS_PREFIX)")
	cmd.Flags().StringVar(&sc.SQLitePath, "sqlite", os.Getenv("REALM_SQLITE_PATH"), "SQLite path (env: REALM_SQLITE_PATH)")
	cmd.Flags().StringVar(&sc.DataDir, "data", getEnvOrDefault("REALM_DATA_DIR", "./data"), "Data directory holding realm.db")
	return cmd
}
