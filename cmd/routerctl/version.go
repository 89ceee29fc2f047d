package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/version"
	"github.com/spf13/cobra"
)

var versionFlags struct {
	check bool
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "routerctl %s (%s %s/%s)\n", version.AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		if !versionFlags.check {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		u, err := version.Check(ctx, nil, version.DefaultReleaseURL, version.AppVersion)
		if err != nil {
			return fmt.Errorf("release check: %w", err)
		}
		if u.Outdated {
			fmt.Fprintf(out, "%s %s\n", cli.WarningSign(), cli.Style("newer release available: "+u.Latest, cli.Yellow))
		} else {
			fmt.Fprintf(out, "%s up to date\n", cli.CheckMark())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionFlags.check, "check", false, "compare against the latest published release")
}
