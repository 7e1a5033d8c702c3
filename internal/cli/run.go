package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"permaudit.io/internal/app"
	"permaudit.io/internal/config"
	"permaudit.io/internal/obs"
	"permaudit.io/internal/runner"
)

type runOptions struct {
	orgID    string
	projects []string
	dryRun   bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a permission audit and ship one record per project",
		Example: `  auditctl run --org 7f3c0e9a-cloud-id
  auditctl run --org 7f3c0e9a-cloud-id --project OPS --project WEB --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.orgID) == "" {
				return fmt.Errorf("--org is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res := a.Runner.Run(ctx, runner.Request{
				OrgID:       opts.orgID,
				ProjectKeys: opts.projects,
				DryRun:      opts.dryRun,
			})
			out := cmd.OutOrStdout()
			if root.jsonOutput {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Run %s for %s\n", res.RunID, res.OrgID)
				fmt.Fprintf(out, "  Projects: %d\n", res.ProjectsTotal)
				if opts.dryRun {
					fmt.Fprintln(out, "  Dry run: nothing shipped")
				} else {
					fmt.Fprintf(out, "  Shipped: %d\n", res.ProjectsShipped)
				}
				fmt.Fprintf(out, "  Failed: %d\n", res.ProjectsFailed)
			}
			if !res.Success {
				return fmt.Errorf("audit failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.orgID, "org", "", "organization (Jira cloud id) to audit")
	cmd.Flags().StringArrayVar(&opts.projects, "project", nil, "restrict the audit to a project key (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "assemble records without shipping them")
	return cmd
}

// bootstrap loads configuration and wires the application.
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := obs.InitLogger(cfg.Logging())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return nil, err
	}
	return a, nil
}
