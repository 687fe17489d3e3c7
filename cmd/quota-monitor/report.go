package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newReportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Drain the summary queue into the report table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				reporter, err := a.newReporter()
				if err != nil {
					return err
				}
				n := reporter.Run(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "stored %d report items\n", n)
				return nil
			})
		},
	}
}
