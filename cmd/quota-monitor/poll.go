package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
	"github.com/yuxishi/aws-quota-monitor/internal/poller"
)

func newPollCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll the monitored quotas of every region once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctx = logging.WithFields(ctx, logging.Fields{Component: "poll"})
				results, err := a.pollAll(ctx)
				printResults(cmd, results)
				if err != nil {
					return err
				}
				if failed := poller.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d service polls failed", len(failed))
				}
				return nil
			})
		},
	}
}

func printResults(cmd *cobra.Command, results []poller.Result) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Fprintf(out, "%-15s %-20s quotas=%d evaluated=%d forwarded=%d %s\n",
			r.Region, r.Service, r.Quotas, r.Evaluated, r.Forwarded, status)
	}
}
