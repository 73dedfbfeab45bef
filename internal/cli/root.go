// Package cli implements the dirtytables command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kbukum/dirtytables/component"
	"github.com/kbukum/dirtytables/sniffer"
	"github.com/kbukum/dirtytables/version"
)

// NewRootCmd builds the dirtytables command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:     "dirtytables",
		Short:   "Track and truncate the tables tests insert into",
		Version: version.Get().Short(),
		Long: `dirtytables installs insert triggers on test databases that record every
table receiving rows, and truncates exactly those tables between tests.

Connections come from dirtytables.yml (or --config). Only connections named
"test" or "test_*" are cleaned by truncate --all.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: search for dirtytables.yml)")
	flags.StringVar(&opts.connection, "connection", "test", "connection name")
	flags.StringVarP(&opts.output, "output", "o", OutputText, "output format: text or yaml")

	root.AddCommand(
		initCmd(opts),
		shutdownCmd(opts),
		restartCmd(opts),
		dirtyCmd(opts),
		truncateCmd(opts),
		markAllCmd(opts),
		tablesCmd(opts),
		triggersCmd(opts),
		dropTablesCmd(opts),
		statusCmd(opts),
		versionCmd(opts),
	)
	return root
}

// run wraps a command body with app setup and teardown.
func run(opts *options, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, a.close(ctx)) }()
		return fn(ctx, a)
	}
}

func initCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the collector, triggers and truncate procedure",
		Long: `Create the dirty table collector, one insert trigger per table and the
truncate procedure, then mark every table dirty. Does nothing when the
collector already exists.`,
		Args: cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Tracker(ctx, a.connection)
			if err != nil {
				return err
			}
			return a.out.done(a.connection, "dirty table tracking initialized (%s)", t.Mode())
		}),
	}
}

func shutdownCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Drop the triggers and the collector",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			if err := a.fixtures.Shutdown(ctx, a.connection); err != nil {
				return err
			}
			return a.out.done(a.connection, "dirty table tracking removed")
		}),
	}
}

func restartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Reinstall tracking, picking up new tables",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Detached(ctx, a.connection)
			if err != nil {
				return err
			}
			if err := t.Restart(ctx); err != nil {
				return err
			}
			return a.out.done(a.connection, "dirty table tracking restarted (%s)", t.Mode())
		}),
	}
}

func dirtyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dirty",
		Short: "List the tables inserted into since the last truncation",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Tracker(ctx, a.connection)
			if err != nil {
				return err
			}
			dirty, err := t.DirtyTables(ctx)
			if err != nil {
				return err
			}
			slices.Sort(dirty)
			return a.out.list(a.connection, "dirty_tables", dirty)
		}),
	}
}

func truncateCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Truncate the dirty tables",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			if all {
				if err := a.fixtures.TruncateDirtyTablesForAllTestConnections(ctx); err != nil {
					return err
				}
				return a.out.done("all", "dirty tables truncated on %d connections", len(a.fixtures.TestConnectionNames()))
			}
			if err := a.fixtures.TruncateDirtyTables(ctx, a.connection); err != nil {
				return err
			}
			return a.out.done(a.connection, "dirty tables truncated")
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "truncate every test connection")
	return cmd
}

func markAllCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-all",
		Short: "Mark every table dirty",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Tracker(ctx, a.connection)
			if err != nil {
				return err
			}
			if err := t.MarkAllTablesAsDirty(ctx); err != nil {
				return err
			}
			return a.out.done(a.connection, "every table marked dirty")
		}),
	}
}

func tablesCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables that get insert triggers",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Detached(ctx, a.connection)
			if err != nil {
				return err
			}
			var tables []string
			if all {
				tables, err = t.AllTables(ctx, true)
			} else {
				tables, err = t.AllTablesExceptMigrationLogsAndCollector(ctx, true)
			}
			if err != nil {
				return err
			}
			return a.out.list(a.connection, "tables", tables)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "include the collector and migration logs")
	return cmd
}

func triggersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "triggers",
		Short: "List the installed " + sniffer.TriggerPrefix + "* triggers",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			t, err := a.fixtures.Detached(ctx, a.connection)
			if err != nil {
				return err
			}
			triggers, err := t.Triggers(ctx)
			if err != nil {
				return err
			}
			return a.out.list(a.connection, "triggers", triggers)
		}),
	}
}

func dropTablesCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop-tables",
		Short: "Drop every table of the connection",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			if !yes {
				return fmt.Errorf("drop-tables removes every table of %q; pass --yes to confirm", a.connection)
			}
			if err := a.fixtures.DropTables(ctx, a.connection); err != nil {
				return err
			}
			return a.out.done(a.connection, "all tables dropped")
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping every table")
	return cmd
}

type statusReport struct {
	RunID      string                  `yaml:"run_id"`
	Components []component.Description `yaml:"components"`
	Health     []component.Health      `yaml:"health"`
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured components and their health",
		Args:  cobra.NoArgs,
		RunE: run(opts, func(ctx context.Context, a *app) error {
			report := statusReport{
				RunID:      a.fixtures.RunID(),
				Components: append(a.components.Describe(), a.fixtures.Describe()),
				Health:     append(a.components.HealthAll(ctx), a.fixtures.Health(ctx)),
			}
			if a.out.format == OutputYAML {
				return a.out.yaml(report)
			}
			for _, d := range report.Components {
				if _, err := fmt.Fprintf(a.out.w, "%-28s %-10s %s\n", d.Name, d.Type, d.Details); err != nil {
					return err
				}
			}
			for _, h := range report.Health {
				mark := okMark("✓")
				if h.Status != component.StatusHealthy {
					mark = warnMark("!")
				}
				if _, err := fmt.Fprintf(a.out.w, "%s %s %s %s\n", mark, h.Name, h.Status, dim(h.Message)); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func versionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			info := version.Get()
			if out.format == OutputYAML {
				return out.yaml(info)
			}
			_, err = fmt.Fprintln(out.w, info.String())
			return err
		},
	}
}
