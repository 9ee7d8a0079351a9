package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/victornm/raindrop/internal/api"
	"github.com/victornm/raindrop/internal/domain"
)

// newTokenCmd mints a bearer token for local testing against the configured secret.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Print a signed bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tok, err := api.NewToken([]byte(c.Auth.Secret), args[0], domain.Role(role), ttl, time.Now())
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
