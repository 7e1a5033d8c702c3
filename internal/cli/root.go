// Package cli implements auditctl, the operator command line for running
// permission audits outside the HTTP server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	jsonOutput bool
}

// NewRootCmd builds the auditctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "auditctl",
		Short: "auditctl - Jira permission audit operator tool",
		Long: `auditctl runs permission audits against a Jira Cloud site, inspects
scan state, issues API tokens and manages the state database schema.

Settings come from PERMAUDIT_* environment variables or the YAML file
named by PERMAUDIT_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newRunCmd(opts),
		newLastScanCmd(opts),
		newTokenCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
