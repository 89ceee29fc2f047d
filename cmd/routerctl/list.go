package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, cli.Bold("ID\tPROTOCOL\tENABLED\tCREDENTIAL\tBASE URL"))
			for _, p := range a.Registry.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.ProtocolType, cli.Outcome(p.Enabled), cli.Outcome(p.HasCredential()), p.BaseURL)
			}
			return tw.Flush()
		})
	},
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Show stored routing policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cli.PrettyPrint(a.Policies.List())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(policiesCmd)
}
