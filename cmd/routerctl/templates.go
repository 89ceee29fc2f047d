package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/spf13/cobra"
)

var applyFlags struct {
	dryRun bool
}

var templatesCmd = &cobra.Command{
	Use:   "templates [capability]",
	Short: "List routing templates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var capability domain.Capability
		if len(args) == 1 {
			c, err := domain.ParseCapability(args[0])
			if err != nil {
				return err
			}
			capability = c
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, cli.Bold("CAPABILITY\tID\tNAME\tSTEPS"))
			for _, t := range a.Catalog.List(capability) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.Capability, t.ID, t.Name, len(t.Chain))
			}
			return tw.Flush()
		})
	},
}

var applyTemplateCmd = &cobra.Command{
	Use:   "apply-template <capability> <template-id>",
	Short: "Resolve a template against registered providers and save the policy",
	Long: `Resolve a routing template against the enabled providers and save the
resulting policy for the capability.

Nothing is saved when any requirement has no enabled provider; the missing
provider keys are reported instead. Applying the same template twice leaves
the stored policy version unchanged.`,
	Example: `  routerctl apply-template chat china-first-p0
  routerctl apply-template vision china-first-p0 --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		capability, err := domain.ParseCapability(args[0])
		if err != nil {
			return err
		}
		templateID := args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var p domain.Policy
			if applyFlags.dryRun {
				p, err = a.Provisioner.Preview(capability, templateID)
			} else {
				p, err = a.Provisioner.Apply(ctx, capability, templateID)
			}
			if err != nil {
				return err
			}
			cli.PrettyPrint(p)
			if !applyFlags.dryRun {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s policy at version %d\n", cli.CheckMark(), capability, p.Version)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(applyTemplateCmd)
	applyTemplateCmd.Flags().BoolVar(&applyFlags.dryRun, "dry-run", false, "resolve without saving")
}
