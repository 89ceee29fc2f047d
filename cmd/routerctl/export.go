package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/spf13/cobra"
)

var exportFlags struct {
	output     string
	sessionID  string
	capability string
	errorKind  string
	since      string
	until      string
	limit      int
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the attempt log as CSV",
	Long: `Export attempt log entries as CSV, newest first.

Without --output the CSV is written to stdout.`,
	Example: `  routerctl export --output attempts.csv --since 2026-01-01T00:00:00Z
  routerctl export --capability vision --error-kind rate_limit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := exportFilter()
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var w io.Writer = cmd.OutOrStdout()
			if exportFlags.output != "" && exportFlags.output != "-" {
				f, err := os.Create(exportFlags.output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := a.Attempts.ExportCSV(ctx, w, filter)
			if err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s exported %d attempts to %s\n", cli.CheckMark(), n, exportFlags.output)
			}
			return nil
		})
	},
}

func exportFilter() (domain.AttemptFilter, error) {
	filter := domain.AttemptFilter{
		SessionID: exportFlags.sessionID,
		ErrorKind: domain.ErrorKind(exportFlags.errorKind),
		Limit:     exportFlags.limit,
	}
	if exportFlags.capability != "" {
		c, err := domain.ParseCapability(exportFlags.capability)
		if err != nil {
			return filter, err
		}
		filter.Capability = c
	}
	for _, tf := range []struct {
		raw  string
		dst  *time.Time
		name string
	}{
		{exportFlags.since, &filter.Since, "since"},
		{exportFlags.until, &filter.Until, "until"},
	} {
		if tf.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, tf.raw)
		if err != nil {
			return filter, fmt.Errorf("--%s: %w", tf.name, err)
		}
		*tf.dst = t
	}
	return filter, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFlags.sessionID, "session", "", "filter by session id")
	exportCmd.Flags().StringVar(&exportFlags.capability, "capability", "", "filter by capability")
	exportCmd.Flags().StringVar(&exportFlags.errorKind, "error-kind", "", "filter by error kind")
	exportCmd.Flags().StringVar(&exportFlags.since, "since", "", "only attempts at or after this RFC3339 time")
	exportCmd.Flags().StringVar(&exportFlags.until, "until", "", "only attempts before this RFC3339 time")
	exportCmd.Flags().IntVar(&exportFlags.limit, "limit", 0, "maximum rows (0 for no limit)")
}
