package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"permaudit.io/internal/auth"
	"permaudit.io/internal/config"
)

type tokenOptions struct {
	subject string
	orgID   string
	roles   []string
	ttl     time.Duration
}

type tokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 bearer token signed with PERMAUDIT_AUTH_SECRET. The subject
is the caller's Jira account id; the token is scoped to one organization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv(config.EnvName("auth.secret"))
			if secret == "" {
				return errors.New(config.EnvName("auth.secret") + " is not set")
			}
			token, expires, err := auth.NewAuthenticator(secret).GenerateToken(opts.subject, opts.orgID, opts.roles, opts.ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tokenOutput{Token: token, ExpiresAt: expires})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", "", "Jira account id of the caller")
	cmd.Flags().StringVar(&opts.orgID, "org", "", "organization the token may audit")
	cmd.Flags().StringSliceVar(&opts.roles, "role", nil, "role claims (repeatable)")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
