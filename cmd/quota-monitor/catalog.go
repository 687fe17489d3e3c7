package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yuxishi/aws-quota-monitor/internal/logging"
)

func newCatalogCmd(opts *options) *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the quota catalog",
	}
	cmd.PersistentFlags().StringVar(&region, "region", "", "region to act on (default: first configured)")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Rediscover the quotas of every monitored service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctx = logging.WithFields(ctx, logging.Fields{Component: "catalog-sync"})
				if region == "" {
					return a.syncCatalogs(ctx)
				}
				r, err := a.region(region)
				if err != nil {
					return err
				}
				return r.catalog.Sync(ctx)
			})
		},
	}

	var monitored bool
	setCmd := &cobra.Command{
		Use:   "set <service>",
		Short: "Turn monitoring of a service on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				r, err := a.region(region)
				if err != nil {
					return err
				}
				if err := r.catalog.SetMonitoring(ctx, args[0], monitored); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s monitored=%t in %s\n", args[0], monitored, r.name)
				return nil
			})
		},
	}
	setCmd.Flags().BoolVar(&monitored, "monitored", true, "whether the service is monitored")

	listCmd := &cobra.Command{
		Use:   "list [service]",
		Short: "List catalog services, or the quotas of one service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				r, err := a.region(region)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					services, err := r.catalog.Services(ctx)
					if err != nil {
						return err
					}
					for _, s := range services {
						fmt.Fprintf(out, "%-20s monitored=%t\n", s.ServiceCode, s.Monitored)
					}
					return nil
				}
				entries, err := r.catalog.Entries(ctx, args[0])
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%-12s %s\n", e.QuotaCode, e.QuotaName)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(syncCmd, setCmd, listCmd)
	return cmd
}
