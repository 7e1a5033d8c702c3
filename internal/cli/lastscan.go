package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type lastScanOutput struct {
	OrgID         string `json:"orgId"`
	LastScannedAt *int64 `json:"lastScannedAt"`
}

func newLastScanCmd(root *rootOptions) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "last-scan",
		Short: "Show when an organization last completed an audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(orgID) == "" {
				return fmt.Errorf("--org is required")
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			at, ok, err := a.Runner.LastScannedAt(cmd.Context(), orgID)
			if err != nil {
				return fmt.Errorf("read last scan: %w", err)
			}
			out := lastScanOutput{OrgID: orgID}
			if ok {
				ms := at.UnixMilli()
				out.LastScannedAt = &ms
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: never scanned\n", orgID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: last scanned %s\n", orgID, at.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization (Jira cloud id)")
	return cmd
}
