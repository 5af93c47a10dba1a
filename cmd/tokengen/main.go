// Command tokengen mints bearer tokens for local play and smoke tests.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/poker-table-coordinator/internal/config"
	"github.com/iliyamo/poker-table-coordinator/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cl     utils.Claims
		ttl    time.Duration
		secret string
	)
	cmd := &cobra.Command{
		Use:   "tokengen --user alice [--name Alice] [--role ADMIN]",
		Short: "Print an HS256 access token for the coordinator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set JWT_SECRET")
			}
			tok, err := utils.NewAccessToken(secret, cl, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&cl.UserID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&cl.Name, "name", "", "display name captured at lobby join")
	cmd.Flags().StringVar(&cl.Role, "role", "", "role claim, e.g. ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET or .env)")
	_ = cmd.MarkFlagRequired("user")
	cobra.OnInitialize(func() { config.LoadDotEnv() })
	return cmd
}
