package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/core/domain"
	v1 "github.com/nulzo/capability-router/internal/server/v1"
	"github.com/spf13/cobra"
)

var statsFlags struct {
	hours      int
	capability string
	json       bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent attempts by capability and error kind",
	Example: `  routerctl stats --hours 6
  routerctl stats --capability chat --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsFlags.hours <= 0 || statsFlags.hours > v1.MaxWindowHours {
			return fmt.Errorf("--hours must be between 1 and %d", v1.MaxWindowHours)
		}
		var capability domain.Capability
		if statsFlags.capability != "" {
			c, err := domain.ParseCapability(statsFlags.capability)
			if err != nil {
				return err
			}
			capability = c
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			window := time.Duration(statsFlags.hours) * time.Hour
			stats, err := a.Attempts.Stats(ctx, window, capability)
			if err != nil {
				return err
			}
			if statsFlags.json {
				cli.PrettyPrint(stats)
				return nil
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.Dim(fmt.Sprintf("no attempts in the last %dh", statsFlags.hours)))
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, cli.Bold("CAPABILITY\tOUTCOME\tCOUNT"))
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Capability, s.ErrorKind, s.Count)
			}
			return tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsFlags.hours, "hours", 24, "window size in hours")
	statsCmd.Flags().StringVar(&statsFlags.capability, "capability", "", "restrict to one capability")
	statsCmd.Flags().BoolVar(&statsFlags.json, "json", false, "print results as JSON")
}
