package main

import (
	"context"
	"fmt"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/spf13/cobra"
)

var probeFlags struct {
	json bool
}

var probeCmd = &cobra.Command{
	Use:   "probe [provider-id]",
	Short: "Check provider reachability",
	Long: `Probe one provider, or every enabled provider when no id is given.

Each probe lists the provider's models under the configured health timeout.
Probes never write to the attempt log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var results []domain.HealthInfo
			if len(args) == 1 {
				info, err := a.Prober.Probe(ctx, args[0])
				if err != nil {
					return err
				}
				results = []domain.HealthInfo{info}
			} else {
				results = a.Prober.ProbeAll(ctx).Results
			}

			if probeFlags.json {
				cli.PrettyPrint(results)
				return nil
			}
			printHealth(cmd, results)
			return nil
		})
	},
}

func printHealth(cmd *cobra.Command, results []domain.HealthInfo) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, cli.Dim("no enabled providers"))
		return
	}
	for _, r := range results {
		line := fmt.Sprintf("%s %-20s %-10s %6dms", cli.Outcome(r.OK), r.ProviderID, r.ProtocolType, r.LatencyMS)
		if r.OK {
			line += "  " + cli.Dim(r.Message)
		} else {
			line += fmt.Sprintf("  %s %s", cli.Style(string(r.ErrorKind), cli.Red), r.Message)
		}
		fmt.Fprintln(out, line)
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probeFlags.json, "json", false, "print results as JSON")
}
