package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/advisor"
	"github.com/yuxishi/aws-quota-monitor/internal/aws"
)

func (a *app) newRefresher() *advisor.Refresher {
	support := aws.NewAdvisor(a.home().clients.Support)
	return advisor.NewRefresher(support, a.cfg.TrustedAdvisor.Services, a.cfg.MaxConcurrency, a.stats)
}

func newAdvisorCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ta-refresh",
		Short: "Refresh the Trusted Advisor service limit checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.newRefresher().Refresh(ctx)
				if res.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "Trusted Advisor is not available, nothing refreshed")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed=%d failed=%d\n", res.Refreshed, res.Failed)
				if res.Failed > 0 {
					return fmt.Errorf("%d checks failed to refresh", res.Failed)
				}
				return nil
			})
		},
	}
}
