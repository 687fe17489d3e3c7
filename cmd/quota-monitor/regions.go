package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/aws"
)

func newRegionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions enabled for the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				regions, err := aws.GetRegions(ctx, a.home().clients.EC2)
				if err != nil {
					return err
				}
				for _, r := range regions {
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", r.Code, r.Name)
				}
				return nil
			})
		},
	}
}

func newServicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services that publish quotas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				services, err := a.home().fetcher.GetServices(ctx)
				if err != nil {
					return err
				}
				for _, s := range services {
					fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", s.Code, s.Name)
				}
				return nil
			})
		},
	}
}
